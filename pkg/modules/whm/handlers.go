package whm

import (
	"fmt"

	"github.com/quantumnode/gateway/pkg/command"
)

// Identity selects an account by username or domain.
type Identity struct {
	Username string `mapstructure:"username"`
	Domain   string `mapstructure:"domain"`
}

type createAccountInput struct {
	Username     string `mapstructure:"username"`
	Domain       string `mapstructure:"domain"`
	PlanCode     string `mapstructure:"planCode"`
	WHMPackage   string `mapstructure:"whmPackage"`
	ContactEmail string `mapstructure:"contactEmail"`
	Password     string `mapstructure:"password"`
}

// Account is a hosting account as reported by createAccount and getAccountSummary.
type Account struct {
	Username         string   `json:"username"`
	Domain           string   `json:"domain"`
	Package          string   `json:"package"`
	ContactEmail     string   `json:"contactEmail,omitempty"`
	Status           string   `json:"status"`
	IP               string   `json:"ip,omitempty"`
	Nameservers      []string `json:"nameservers,omitempty"`
	DiskUsedMB       int      `json:"diskUsedMb,omitempty"`
	DiskLimitMB      int      `json:"diskLimitMb,omitempty"`
	BandwidthUsedMB  int      `json:"bandwidthUsedMb,omitempty"`
	BandwidthLimitMB int      `json:"bandwidthLimitMb,omitempty"`
	CreatedAt        string   `json:"createdAt"`
	LastLoginAt      string   `json:"lastLoginAt,omitempty"`
}

func (m *Module) createAccount(p command.Payload) (command.Result, error) {
	var in createAccountInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode createAccount: %w", err)
	}
	if res, failed := command.Require().
		Field("username", in.Username != "").
		Field("domain", in.Domain != "").
		Field("contactEmail", in.ContactEmail != "").
		Field("planCode or whmPackage", in.PlanCode != "" || in.WHMPackage != "").
		Failed(); failed {
		return res, nil
	}

	return command.OK(map[string]any{
		"account": Account{
			Username:     in.Username,
			Domain:       in.Domain,
			Package:      firstNonEmpty(in.WHMPackage, in.PlanCode, defaultPackage),
			ContactEmail: in.ContactEmail,
			Status:       "active",
			IP:           sharedIP,
			Nameservers:  append([]string(nil), nameservers...),
			CreatedAt:    m.stamp(),
		},
	}), nil
}

type suspendInput struct {
	Identity `mapstructure:",squash"`
	Reason   string `mapstructure:"reason"`
}

// Suspension reports a suspendAccount request.
type Suspension struct {
	Username    *string `json:"username"`
	Domain      *string `json:"domain"`
	Reason      string  `json:"reason"`
	Status      string  `json:"status"`
	SuspendedAt string  `json:"suspendedAt"`
}

func (m *Module) suspendAccount(p command.Payload) (command.Result, error) {
	var in suspendInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode suspendAccount: %w", err)
	}
	if res, failed := requireIdentifier(in.Identity); failed {
		return res, nil
	}
	return command.OK(map[string]any{
		"suspension": Suspension{
			Username:    optional(in.Username),
			Domain:      optional(in.Domain),
			Reason:      firstNonEmpty(in.Reason, "Unspecified"),
			Status:      "suspended",
			SuspendedAt: m.stamp(),
		},
	}), nil
}

// Unsuspension reports an unsuspendAccount request.
type Unsuspension struct {
	Username      *string `json:"username"`
	Domain        *string `json:"domain"`
	Status        string  `json:"status"`
	UnsuspendedAt string  `json:"unsuspendedAt"`
}

func (m *Module) unsuspendAccount(p command.Payload) (command.Result, error) {
	var in Identity
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode unsuspendAccount: %w", err)
	}
	if res, failed := requireIdentifier(in); failed {
		return res, nil
	}
	return command.OK(map[string]any{
		"unsuspension": Unsuspension{
			Username:      optional(in.Username),
			Domain:        optional(in.Domain),
			Status:        "active",
			UnsuspendedAt: m.stamp(),
		},
	}), nil
}

type changePackageInput struct {
	Identity   `mapstructure:",squash"`
	NewPackage string `mapstructure:"newPackage"`
}

// PackageChange reports a changePackage request.
type PackageChange struct {
	Username   *string `json:"username"`
	Domain     *string `json:"domain"`
	NewPackage string  `json:"newPackage"`
	ChangedAt  string  `json:"changedAt"`
}

func (m *Module) changePackage(p command.Payload) (command.Result, error) {
	var in changePackageInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode changePackage: %w", err)
	}
	if res, failed := command.Require().
		Field("username or domain", in.Username != "" || in.Domain != "").
		Field("newPackage", in.NewPackage != "").
		Failed(); failed {
		return res, nil
	}
	return command.OK(map[string]any{
		"change": PackageChange{
			Username:   optional(in.Username),
			Domain:     optional(in.Domain),
			NewPackage: in.NewPackage,
			ChangedAt:  m.stamp(),
		},
	}), nil
}

func (m *Module) getAccountSummary(p command.Payload) (command.Result, error) {
	var in Identity
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode getAccountSummary: %w", err)
	}
	if res, failed := requireIdentifier(in); failed {
		return res, nil
	}
	return command.OK(map[string]any{
		"account": Account{
			Username:         firstNonEmpty(in.Username, "stubuser"),
			Domain:           firstNonEmpty(in.Domain, "stubdomain.com"),
			Package:          defaultPackage,
			Status:           "active",
			DiskUsedMB:       512,
			DiskLimitMB:      10240,
			BandwidthUsedMB:  1024,
			BandwidthLimitMB: 102400,
			CreatedAt:        "2025-01-01T00:00:00.000Z",
			LastLoginAt:      "2025-11-01T12:00:00.000Z",
		},
	}), nil
}

type listAccountsInput struct {
	Limit int `mapstructure:"limit"`
}

// AccountListing is one row of listAccounts.
type AccountListing struct {
	Username string `json:"username"`
	Domain   string `json:"domain"`
	Status   string `json:"status"`
	Package  string `json:"package"`
}

func (m *Module) listAccounts(p command.Payload) (command.Result, error) {
	var in listAccountsInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode listAccounts: %w", err)
	}
	n := in.Limit
	switch {
	case n == 0:
		n = defaultListLimit
	case n < 0:
		n = 0
	case n > maxListLimit:
		n = maxListLimit
	}

	accounts := make([]AccountListing, 0, n)
	for i := 1; i <= n; i++ {
		row := AccountListing{
			Username: fmt.Sprintf("stubuser%d", i),
			Domain:   fmt.Sprintf("stub%d.example.com", i),
			Status:   "suspended",
			Package:  proPackage,
		}
		if i%2 == 0 {
			row.Status = "active"
			row.Package = defaultPackage
		}
		accounts = append(accounts, row)
	}
	return command.OK(map[string]any{"accounts": accounts}), nil
}

type emailSetupInput struct {
	Domain    string `mapstructure:"domain"`
	MXTarget  string `mapstructure:"mxTarget"`
	SPFPolicy string `mapstructure:"spfPolicy"`
}

// EmailSetup reports mail routing for a domain.
type EmailSetup struct {
	Domain      string `json:"domain"`
	MXTarget    string `json:"mxTarget"`
	SPFPolicy   string `json:"spfPolicy"`
	DKIMEnabled bool   `json:"dkimEnabled"`
	UpdatedAt   string `json:"updatedAt"`
}

func (m *Module) setupEmailForDomain(p command.Payload) (command.Result, error) {
	var in emailSetupInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode setupEmailForDomain: %w", err)
	}
	if in.Domain == "" {
		return command.MissingField("domain"), nil
	}
	return command.OK(map[string]any{
		"emailSetup": EmailSetup{
			Domain:      in.Domain,
			MXTarget:    firstNonEmpty(in.MXTarget, defaultMXTarget),
			SPFPolicy:   firstNonEmpty(in.SPFPolicy, defaultSPFPolicy),
			DKIMEnabled: true,
			UpdatedAt:   m.stamp(),
		},
	}), nil
}

type resetPasswordInput struct {
	Identity    `mapstructure:",squash"`
	NewPassword string `mapstructure:"newPassword"`
}

// PasswordReset reports a queued password change. The password itself is
// never echoed.
type PasswordReset struct {
	Username    *string `json:"username"`
	Domain      *string `json:"domain"`
	NewPassword *string `json:"newPassword"`
	Status      string  `json:"status"`
	RequestedAt string  `json:"requestedAt"`
}

func (m *Module) resetPassword(p command.Payload) (command.Result, error) {
	var in resetPasswordInput
	if err := p.Decode(&in); err != nil {
		return command.Result{}, fmt.Errorf("decode resetPassword: %w", err)
	}
	if res, failed := requireIdentifier(in.Identity); failed {
		return res, nil
	}
	var masked *string
	if in.NewPassword != "" {
		masked = optional(maskedPassword)
	}
	return command.OK(map[string]any{
		"passwordReset": PasswordReset{
			Username:    optional(in.Username),
			Domain:      optional(in.Domain),
			NewPassword: masked,
			Status:      "queued",
			RequestedAt: m.stamp(),
		},
	}), nil
}
