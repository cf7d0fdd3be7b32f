package transport

import (
	"time"

	"github.com/Skotchmaster/user_service/internal/acl"
	"github.com/Skotchmaster/user_service/internal/models"
)

type CreateUser struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Patronymic string `json:"patronymic"`
	Password   string `json:"password"`
}

type Credentials struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// OptionalUserData is a partial update; nil fields are left untouched.
type OptionalUserData struct {
	Email      *string    `json:"email"`
	FirstName  *string    `json:"first_name"`
	LastName   *string    `json:"last_name"`
	Patronymic *string    `json:"patronymic"`
	About      *string    `json:"about"`
	Birthday   *time.Time `json:"birthday"`
}

type AdminUserPatch struct {
	OptionalUserData
	Role     *acl.Role `json:"role"`
	Password *string   `json:"password"`
}

type BanRequest struct {
	IsBanned *bool `json:"is_banned"`
}

type InfoManyRequest struct {
	IDs []int64 `json:"ids"`
}

type MinimalUser struct {
	ID            int64     `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Patronymic    string    `json:"patronymic"`
	RegisterDate  time.Time `json:"register_date"`
	IsBanned      bool      `json:"is_banned"`
	FormattedName string    `json:"formatted_name"`
}

type FullUser struct {
	MinimalUser
	Email    string     `json:"email"`
	Role     acl.Role   `json:"role"`
	About    *string    `json:"about"`
	Birthday *time.Time `json:"birthday"`
}

// ExternalUser is the payload of user lifecycle events.
type ExternalUser struct {
	ID       int64    `json:"id"`
	Email    string   `json:"email"`
	Role     acl.Role `json:"role"`
	IsBanned bool     `json:"is_banned"`
}

type RegisteredUser struct {
	User         FullUser `json:"user"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
}

type AccessToken struct {
	AccessToken string `json:"access_token"`
}

func ToMinimal(u *models.User) MinimalUser {
	return MinimalUser{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Patronymic:    u.Patronymic,
		RegisterDate:  u.RegisterDate,
		IsBanned:      u.IsBanned,
		FormattedName: u.LastName + " " + u.FirstName + " " + u.Patronymic,
	}
}

func ToFull(u *models.User) FullUser {
	return FullUser{
		MinimalUser: ToMinimal(u),
		Email:       u.Email,
		Role:        u.Role,
		About:       u.About,
		Birthday:    u.Birthday,
	}
}

func ToExternal(u *models.User) ExternalUser {
	return ExternalUser{ID: u.ID, Email: u.Email, Role: u.Role, IsBanned: u.IsBanned}
}

func MinimalList(users []models.User) []MinimalUser {
	out := make([]MinimalUser, 0, len(users))
	for i := range users {
		out = append(out, ToMinimal(&users[i]))
	}
	return out
}

func FullList(users []models.User) []FullUser {
	out := make([]FullUser, 0, len(users))
	for i := range users {
		out = append(out, ToFull(&users[i]))
	}
	return out
}
