package directory

import (
	"context"
	"errors"

	"committee/internal/core"
)

// ErrUnexpectedStatus is returned for any non-2xx answer of the directory service.
var ErrUnexpectedStatus = errors.New("unexpected directory response")

// ErrMemberNotFound is returned by adapters that can detect unknown ids locally.
var ErrMemberNotFound = errors.New("member not found")

// Ports for the Member Directory Service.
type (
	MemberLister interface {
		// ListMembers returns the full roster.
		ListMembers(ctx context.Context) ([]core.Member, error)
	}

	MemberWriter interface {
		// CreateMember stores a new member; the id is assigned by the service.
		CreateMember(ctx context.Context, m core.Member) error
		// UpdateMember replaces the editable fields of an existing member.
		UpdateMember(ctx context.Context, m core.Member) error
	}

	// PaymentStatusWriter sets whether payerID has paid receiverID for month.
	PaymentStatusWriter interface {
		SetPaymentStatus(ctx context.Context, payerID string, month core.Month, receiverID string, paid bool) error
	}

	Directory interface {
		MemberLister
		MemberWriter
		PaymentStatusWriter
	}
)
