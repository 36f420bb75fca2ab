package whm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
)

var fixedNow = time.Date(2025, 11, 20, 8, 30, 0, 0, time.UTC)

func newModule() *Module {
	return New(WithClock(func() time.Time { return fixedNow }))
}

func TestFixturesPass(t *testing.T) {
	m := newModule()
	for _, f := range m.Fixtures() {
		t.Run(f.Name, func(t *testing.T) {
			res, err := m.Execute(context.Background(), f.Name, f.Payload)
			require.NoError(t, err)
			assert.True(t, res.OK, "fixture %s failed: %+v", f.Name, res)
		})
	}
}

func TestSelfTestSuite(t *testing.T) {
	report := command.RunSuite(context.Background(), newModule())
	assert.True(t, report.OK)
	assert.Empty(t, report.Summary.Failed)
	assert.Len(t, report.Summary.Passed, len(Commands))
}

func TestFixtureForEveryCommand(t *testing.T) {
	m := newModule()
	var names []string
	for _, f := range m.Fixtures() {
		names = append(names, f.Name)
	}
	assert.Equal(t, m.Commands(), names)
}

func TestCreateAccountValidation(t *testing.T) {
	res, err := newModule().Execute(context.Background(), string(CreateAccount), command.Payload{
		"username":   "qn01",
		"whmPackage": "quantumn_Pro",
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, domain.CodeMissingFields, res.Error)
	assert.Equal(t, []string{"username", "domain", "contactEmail", "planCode or whmPackage"}, res.Required)
	assert.Equal(t, []string{"domain", "contactEmail"}, res.Missing)
}

func TestCreateAccountPrefersPackage(t *testing.T) {
	res, err := newModule().Execute(context.Background(), string(CreateAccount), command.Payload{
		"username":     "qn01",
		"domain":       "qn01.pk",
		"planCode":     "QN_BIZ",
		"whmPackage":   "quantumn_Pro",
		"contactEmail": "a@qn01.pk",
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	acct := res.Data["account"].(Account)
	assert.Equal(t, "quantumn_Pro", acct.Package)
	assert.Equal(t, "2025-11-20T08:30:00.000Z", acct.CreatedAt)
	assert.Len(t, acct.Nameservers, 4)
}

func TestIdentifierRequired(t *testing.T) {
	for _, cmd := range []Command{SuspendAccount, UnsuspendAccount, GetAccountSummary, ResetPassword} {
		t.Run(string(cmd), func(t *testing.T) {
			res, err := newModule().Execute(context.Background(), string(cmd), command.Payload{})
			require.NoError(t, err)
			assert.Equal(t, domain.CodeMissingID, res.Error)
			assert.Equal(t, []string{"username or domain"}, res.Required)
		})
	}
}

func TestSuspendDefaults(t *testing.T) {
	res, err := newModule().Execute(context.Background(), string(SuspendAccount), command.Payload{"domain": "qn.pk"})
	require.NoError(t, err)
	s := res.Data["suspension"].(Suspension)
	assert.Nil(t, s.Username)
	require.NotNil(t, s.Domain)
	assert.Equal(t, "qn.pk", *s.Domain)
	assert.Equal(t, "Unspecified", s.Reason)
	assert.Equal(t, "suspended", s.Status)
}

func TestChangePackageNeedsPackage(t *testing.T) {
	res, err := newModule().Execute(context.Background(), string(ChangePackage), command.Payload{"username": "qn"})
	require.NoError(t, err)
	assert.Equal(t, domain.CodeMissingFields, res.Error)
	assert.Equal(t, []string{"newPackage"}, res.Missing)
}

func TestListAccountsLimits(t *testing.T) {
	tests := []struct {
		limit any
		want  int
	}{
		{limit: nil, want: 3},
		{limit: 5, want: 5},
		{limit: "7", want: 7},
		{limit: 100, want: 20},
		{limit: -2, want: 0},
	}
	for _, tt := range tests {
		p := command.Payload{}
		if tt.limit != nil {
			p["limit"] = tt.limit
		}
		res, err := newModule().Execute(context.Background(), string(ListAccounts), p)
		require.NoError(t, err)
		accounts := res.Data["accounts"].([]AccountListing)
		assert.Len(t, accounts, tt.want, "limit %v", tt.limit)
	}

	res, _ := newModule().Execute(context.Background(), string(ListAccounts), command.Payload{"limit": 2})
	accounts := res.Data["accounts"].([]AccountListing)
	assert.Equal(t, "suspended", accounts[0].Status)
	assert.Equal(t, "active", accounts[1].Status)
	assert.Equal(t, "stub2.example.com", accounts[1].Domain)
}

func TestSetupEmailRequiresDomain(t *testing.T) {
	res, err := newModule().Execute(context.Background(), string(SetupEmailForDomain), command.Payload{})
	require.NoError(t, err)
	assert.Equal(t, "missing_domain", res.Error)
}

func TestResetPasswordMasksPassword(t *testing.T) {
	res, err := newModule().Execute(context.Background(), string(ResetPassword), command.Payload{
		"username":    "qn",
		"newPassword": "secret",
	})
	require.NoError(t, err)
	reset := res.Data["passwordReset"].(PasswordReset)
	require.NotNil(t, reset.NewPassword)
	assert.Equal(t, "***hidden***", *reset.NewPassword)

	res, err = newModule().Execute(context.Background(), string(ResetPassword), command.Payload{"username": "qn"})
	require.NoError(t, err)
	assert.Nil(t, res.Data["passwordReset"].(PasswordReset).NewPassword)
}

func TestUnknownCommand(t *testing.T) {
	_, err := newModule().Execute(context.Background(), "deleteEverything", command.Payload{})
	assert.ErrorIs(t, err, domain.ErrUnknownCommand)
}
