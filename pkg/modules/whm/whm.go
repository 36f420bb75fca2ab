// Package whm exposes hosting-account commands. Handlers validate and shape
// their inputs without contacting the control panel; the signed
// /api/whm/{action} endpoints are the path that reaches WHM.
package whm

import (
	"context"
	"fmt"
	"time"

	"github.com/quantumnode/gateway/pkg/command"
	"github.com/quantumnode/gateway/pkg/domain"
)

// Command names a WHM module command.
type Command string

const (
	CreateAccount       Command = "createAccount"
	SuspendAccount      Command = "suspendAccount"
	UnsuspendAccount    Command = "unsuspendAccount"
	ChangePackage       Command = "changePackage"
	GetAccountSummary   Command = "getAccountSummary"
	ListAccounts        Command = "listAccounts"
	SetupEmailForDomain Command = "setupEmailForDomain"
	ResetPassword       Command = "resetPassword"
)

// Commands in catalog order.
var Commands = []Command{
	CreateAccount,
	SuspendAccount,
	UnsuspendAccount,
	ChangePackage,
	GetAccountSummary,
	ListAccounts,
	SetupEmailForDomain,
	ResetPassword,
}

const (
	defaultPackage   = "quantumn_Starter"
	proPackage       = "quantumn_Pro"
	sharedIP         = "190.92.170.162"
	defaultMXTarget  = "mx.mysecurecloudhost.com"
	defaultSPFPolicy = "v=spf1 a mx ~all"
	maskedPassword   = "***hidden***"
	defaultListLimit = 3
	maxListLimit     = 20
)

var nameservers = []string{
	"ns1.mysecurecloudhost.com",
	"ns2.mysecurecloudhost.com",
	"ns3.mysecurecloudhost.com",
	"ns4.mysecurecloudhost.com",
}

// Module implements command.Module for WHM account operations.
type Module struct {
	now func() time.Time
}

// Option configures a Module.
type Option func(*Module)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Module) { m.now = now }
}

// New creates the WHM module.
func New(opts ...Option) *Module {
	m := &Module{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements command.Module.
func (m *Module) Name() string { return "whm" }

// Commands implements command.Module.
func (m *Module) Commands() []string {
	out := make([]string, len(Commands))
	for i, c := range Commands {
		out[i] = string(c)
	}
	return out
}

// Execute implements command.Module.
func (m *Module) Execute(ctx context.Context, cmd string, p command.Payload) (command.Result, error) {
	switch Command(cmd) {
	case CreateAccount:
		return m.createAccount(p)
	case SuspendAccount:
		return m.suspendAccount(p)
	case UnsuspendAccount:
		return m.unsuspendAccount(p)
	case ChangePackage:
		return m.changePackage(p)
	case GetAccountSummary:
		return m.getAccountSummary(p)
	case ListAccounts:
		return m.listAccounts(p)
	case SetupEmailForDomain:
		return m.setupEmailForDomain(p)
	case ResetPassword:
		return m.resetPassword(p)
	default:
		return command.Result{}, fmt.Errorf("%w: whm.%s", domain.ErrUnknownCommand, cmd)
	}
}

// Fixtures implements command.Module.
func (m *Module) Fixtures() []command.Fixture {
	return []command.Fixture{
		{Name: string(CreateAccount), Payload: command.Payload{
			"username":     "qnaitest01",
			"domain":       "qnaitest01.com.pk",
			"planCode":     "QN_TEST_PLAN",
			"contactEmail": "owner@qnaitest01.com.pk",
			"password":     "TempPass@123",
		}},
		{Name: string(SuspendAccount), Payload: command.Payload{"username": "qnaitest01", "reason": "Selftest suspend"}},
		{Name: string(UnsuspendAccount), Payload: command.Payload{"username": "qnaitest01"}},
		{Name: string(ChangePackage), Payload: command.Payload{"username": "qnaitest01", "newPackage": "quantumn_Starter"}},
		{Name: string(GetAccountSummary), Payload: command.Payload{"username": "qnaitest01"}},
		{Name: string(ListAccounts), Payload: command.Payload{"limit": 3}},
		{Name: string(SetupEmailForDomain), Payload: command.Payload{"domain": "qnaitest01.com.pk"}},
		{Name: string(ResetPassword), Payload: command.Payload{"username": "qnaitest01", "newPassword": "TempPass@456"}},
	}
}

func (m *Module) stamp() string {
	return m.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func requireIdentifier(in Identity) (command.Result, bool) {
	return command.RequireIdentifier().
		Field("username or domain", in.Username != "" || in.Domain != "").
		Failed()
}
