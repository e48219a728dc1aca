package auth

import "github.com/carechat/server/internal/model"

// AvatarFor picks the avatar source by role: the user detail for USER, the doctor
// detail for DOCTOR, the placeholder for everything else. A missing source also
// yields the placeholder.
func AvatarFor(account *model.Account, placeholder string) string {
	switch account.Role {
	case model.RoleUser:
		if account.UserDetail != nil && account.UserDetail.AvatarURL != "" {
			return account.UserDetail.AvatarURL
		}
	case model.RoleDoctor:
		if account.DoctorDetail != nil && account.DoctorDetail.AvatarURL != "" {
			return account.DoctorDetail.AvatarURL
		}
	}
	return placeholder
}
