package crawler

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// FailureKind groups transport-level fetch failures.
type FailureKind string

// Supported failure kinds.
const (
	FailureTimeout  FailureKind = "timeout"
	FailureDNS      FailureKind = "dns"
	FailureConnect  FailureKind = "connect"
	FailureTLS      FailureKind = "tls"
	FailureCanceled FailureKind = "canceled"
	FailureOther    FailureKind = "other"
)

// FetchError is returned by fetchers when no HTTP response was obtained.
type FetchError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fetch %s", e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError classifies err into a FetchError.
func NewFetchError(err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Kind: failureKind(err), Message: err.Error(), Err: err}
}

// IsFailure reports whether err is a FetchError of the given kind.
func IsFailure(err error, kind FailureKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

func failureKind(err error) FailureKind {
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return FailureTimeout
		}
		return FailureDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) || errors.As(err, &recordErr) {
		return FailureTLS
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return FailureConnect
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return FailureConnect
	}
	return FailureOther
}
