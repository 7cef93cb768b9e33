package apns

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"strings"
)

// oidUserID is the UID attribute APNs certificates carry the topic in.
var oidUserID = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 1}

// subjectTopicPrefixes are the ways certificate tooling prints the UID
// attribute in a subject string. They are tried in order; this is a
// compatibility shim for different issuing and export toolchains.
var subjectTopicPrefixes = []string{
	"0.9.2342.19200300.100.1.1=",
	"userId=",
	"uid=",
}

// TopicFromCertificate returns the topic an APNs certificate was issued for.
// The typed UID attribute is used when present, otherwise the rendered
// subject is searched with TopicFromSubject.
func TopicFromCertificate(cert *x509.Certificate) (string, error) {
	if cert == nil {
		return "", fmt.Errorf("%w: certificate is nil", ErrInvalidCertificate)
	}
	for _, atv := range cert.Subject.Names {
		if !atv.Type.Equal(oidUserID) {
			continue
		}
		if s, ok := atv.Value.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
	}
	return TopicFromSubject(cert.Subject.String())
}

// TopicFromSubject extracts the topic from a subject distinguished name string.
// A prefix only matches if it occurs exactly once and is followed by a value.
func TopicFromSubject(subject string) (string, error) {
	for _, prefix := range subjectTopicPrefixes {
		if strings.Count(subject, prefix) != 1 {
			continue
		}
		_, rest, _ := strings.Cut(subject, prefix)
		if end := strings.IndexAny(rest, ",+"); end >= 0 {
			rest = rest[:end]
		}
		if topic := strings.TrimSpace(rest); topic != "" {
			return topic, nil
		}
	}
	return "", fmt.Errorf("%w: no topic attribute in subject %q", ErrInvalidCertificate, subject)
}

// certificateIdentity splits a certificate topic into the bundle id and
// whether the certificate may only send voip pushes.
func certificateIdentity(topic string) (bundleID string, voipOnly bool) {
	if strings.HasSuffix(topic, voipSuffix) {
		return strings.TrimSuffix(topic, voipSuffix), true
	}
	return topic, false
}
