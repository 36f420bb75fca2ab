// Package domain defines the core business types shared by the gateway.
//
// This package has no dependencies outside the Go standard library. It holds
// the envelope error codes and their HTTP mapping, the sentinel errors used
// across packages, and the record types persisted by the billing, CRM and
// support command modules.
//
// The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
