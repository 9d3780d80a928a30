package models

// TeamRequest is the body of team create/update calls. Which fields apply
// depends on the caller: the platform super admin manages companies, tenant
// admins manage members.
type TeamRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
	Plan     Plan   `json:"plan"`
}

// CompanyInput creates or updates a tenant together with its admin (platform scope).
type CompanyInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Plan     Plan   `json:"plan" validate:"required,oneof=basic pro enterprise"`
	Password string `json:"password" validate:"omitempty,min=8"`
}

// MemberInput creates or updates a user inside the caller's tenant.
type MemberInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"omitempty,min=8"`
	Role     Role   `json:"role" validate:"required,oneof=admin employee accountant"`
}

func (r TeamRequest) Company() CompanyInput {
	return CompanyInput{Name: r.Name, Plan: r.Plan, Password: r.Password}
}

func (r TeamRequest) Member() MemberInput {
	return MemberInput{Name: r.Name, Email: r.Email, Password: r.Password, Role: r.Role}
}
