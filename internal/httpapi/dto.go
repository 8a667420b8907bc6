package httpapi

import (
	"github.com/Yellowatch/boxumco"
)

type contactFields struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Number    string `json:"number"`
	Address   string `json:"address"`
	Postcode  string `json:"postcode"`
	DOB       string `json:"dob"`
}

func (c contactFields) contact() boxumco.Contact {
	return boxumco.Contact(c)
}

type registrationCredentials struct {
	Email     string `json:"email"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

// ClientRegistrationRequest is the body of POST /auth/registration/client.
type ClientRegistrationRequest struct {
	registrationCredentials
	contactFields
	CompanyName string `json:"company_name"`
}

// SupplierRegistrationRequest is the body of POST
// /auth/registration/supplier. Multipart requests use the same field names,
// with subcategories comma separated and the logo file in company_logo.
type SupplierRegistrationRequest struct {
	registrationCredentials
	contactFields
	CompanyName        string   `json:"company_name"`
	CompanyAddress     string   `json:"company_address"`
	CompanyDescription string   `json:"company_description"`
	CompanyPostcode    string   `json:"company_postcode"`
	CompanyNumber      string   `json:"company_number"`
	CompanyType        string   `json:"company_type"`
	Subcategories      []string `json:"subcategories"`
}

func (r SupplierRegistrationRequest) profile(logoKey string) boxumco.SupplierProfile {
	return boxumco.SupplierProfile{
		Contact: r.contact(),
		Company: boxumco.Company{
			Name:          r.CompanyName,
			Address:       r.CompanyAddress,
			Description:   r.CompanyDescription,
			Postcode:      r.CompanyPostcode,
			Number:        r.CompanyNumber,
			Type:          r.CompanyType,
			LogoKey:       logoKey,
			Subcategories: r.Subcategories,
		},
	}
}

// RegistrationResponse is returned with 201.
type RegistrationResponse struct {
	UserID             string `json:"user_id"`
	UserType           string `json:"user_type"`
	VerificationQueued bool   `json:"verification_queued"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by a completed login.
type TokenResponse struct {
	Access   string `json:"access"`
	Refresh  string `json:"refresh"`
	UserID   string `json:"user_id"`
	UserType string `json:"user_type"`
}

// ChallengeResponse is returned with 202 when a second factor is required.
type ChallengeResponse struct {
	TempToken   string `json:"temp_token"`
	MFARequired bool   `json:"mfa_required"`
}

// MFAVerifyRequest is the body of POST /auth/mfa-verify.
type MFAVerifyRequest struct {
	TempToken string `json:"temp_token"`
	MFACode   string `json:"mfa_code"`
}

// RefreshRequest is the body of POST /token/refresh.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse carries the new access token.
type RefreshResponse struct {
	Access string `json:"access"`
}

// MFAEnableResponse is returned by GET /auth/mfa/enable.
type MFAEnableResponse struct {
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code,omitempty"`
	Secret          string `json:"secret"`
}

// MFACodeRequest is the body of POST /auth/mfa/confirm.
type MFACodeRequest struct {
	MFACode string `json:"mfa_code"`
}

// MFAStatusResponse is returned by GET /auth/mfa/status.
type MFAStatusResponse struct {
	MFAEnabled bool `json:"mfa_enabled"`
}

// ResendEmailRequest is the body of POST /auth/registration/resend-email.
type ResendEmailRequest struct {
	Email string `json:"email"`
}

// ChangePasswordRequest is the body of POST /auth/password/change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// DeleteAccountRequest is the body of DELETE /user/delete.
type DeleteAccountRequest struct {
	Confirm bool `json:"confirm"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type clientFields struct {
	CompanyName string `json:"company_name"`
}

type supplierFields struct {
	CompanyName        string   `json:"company_name"`
	CompanyAddress     string   `json:"company_address"`
	CompanyDescription string   `json:"company_description"`
	CompanyPostcode    string   `json:"company_postcode"`
	CompanyNumber      string   `json:"company_number"`
	CompanyType        string   `json:"company_type"`
	CompanyLogo        string   `json:"company_logo,omitempty"`
	Subcategories      []string `json:"subcategories"`
}

// UserPayload is the tagged profile document: user_type selects which of
// client and supplier is present. It is the response of GET /auth/user and
// the body of PUT /user/update.
type UserPayload struct {
	ID       string `json:"id,omitempty"`
	Email    string `json:"email,omitempty"`
	UserType string `json:"user_type"`
	contactFields
	Client   *clientFields   `json:"client,omitempty"`
	Supplier *supplierFields `json:"supplier,omitempty"`
}

func userPayload(u boxumco.User) UserPayload {
	out := UserPayload{
		ID:       u.ID,
		Email:    u.Email,
		UserType: u.AccountType().String(),
	}
	switch p := u.Profile.(type) {
	case boxumco.ClientProfile:
		out.contactFields = contactFields(p.Contact)
		out.Client = &clientFields{CompanyName: p.CompanyName}
	case boxumco.SupplierProfile:
		out.contactFields = contactFields(p.Contact)
		subs := p.Company.Subcategories
		if subs == nil {
			subs = []string{}
		}
		out.Supplier = &supplierFields{
			CompanyName:        p.Company.Name,
			CompanyAddress:     p.Company.Address,
			CompanyDescription: p.Company.Description,
			CompanyPostcode:    p.Company.Postcode,
			CompanyNumber:      p.Company.Number,
			CompanyType:        p.Company.Type,
			CompanyLogo:        p.Company.LogoKey,
			Subcategories:      subs,
		}
	}
	return out
}

// profile converts the payload into the variant named by user_type, falling
// back to fallback when user_type is empty. The supplier logo key is not
// client-settable; existing is carried over.
func (p UserPayload) profile(fallback boxumco.AccountType, existing boxumco.Profile) (boxumco.Profile, error) {
	t := fallback
	if p.UserType != "" {
		parsed, err := boxumco.ParseAccountType(p.UserType)
		if err != nil {
			return nil, boxumco.ErrInvalidProfile
		}
		t = parsed
	}

	switch t {
	case boxumco.AccountClient:
		out := boxumco.ClientProfile{Contact: p.contact()}
		if p.Client != nil {
			out.CompanyName = p.Client.CompanyName
		}
		return out, nil
	case boxumco.AccountSupplier:
		out := boxumco.SupplierProfile{Contact: p.contact()}
		if p.Supplier != nil {
			out.Company = boxumco.Company{
				Name:          p.Supplier.CompanyName,
				Address:       p.Supplier.CompanyAddress,
				Description:   p.Supplier.CompanyDescription,
				Postcode:      p.Supplier.CompanyPostcode,
				Number:        p.Supplier.CompanyNumber,
				Type:          p.Supplier.CompanyType,
				Subcategories: p.Supplier.Subcategories,
			}
		}
		if prev, ok := existing.(boxumco.SupplierProfile); ok {
			out.Company.LogoKey = prev.Company.LogoKey
		}
		return out, nil
	default:
		return nil, boxumco.ErrInvalidProfile
	}
}
