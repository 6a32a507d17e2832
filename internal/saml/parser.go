package saml

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"strings"
	"time"
)

var (
	// ErrMalformedDocument is returned when the input is neither XML
	// nor base64-encoded XML, or the XML is not a recognized SAML root.
	ErrMalformedDocument = errors.New("saml: malformed document")

	// ErrProhibitedDoctype is returned when the document carries a
	// DOCTYPE declaration. Inline DTDs are how XXE payloads arrive, so
	// they are rejected outright rather than parsed.
	ErrProhibitedDoctype = errors.New("saml: document type declarations are not accepted")

	// ErrNoAssertion is returned for a response that carries no
	// plaintext assertion.
	ErrNoAssertion = errors.New("saml: response contains no assertion")
)

// ParsedDocument is the result of parsing a SAML response or a bare
// assertion. Fields describing the response envelope are zero-valued
// when the input was a bare assertion.
type ParsedDocument struct {
	Response  *Response
	Assertion *Assertion

	// AssertionCount is the number of plaintext assertions in the
	// envelope. Consumers reject anything other than exactly one; a
	// surplus is the signature-wrapping shape.
	AssertionCount int

	Issuer       string
	Destination  string
	InResponseTo string
	StatusCode   string
	Success      bool

	NameID       string
	NameIDFormat string
	Audience     string
	SessionIndex string
	Attributes   map[string]string

	NotBefore    time.Time
	NotOnOrAfter time.Time

	// ClaimsSigned and ClaimsEncrypted report only that the document
	// carries the corresponding structures; no cryptographic
	// verification has happened by the time they are set.
	ClaimsSigned    bool
	ClaimsEncrypted bool
	ResponseSigned  bool
}

// Parse decodes raw into a SAML Response or Assertion and extracts the
// commonly inspected fields. Input that does not look like XML is
// base64-decoded first, so both wire-encoded and plain documents are
// accepted.
func Parse(raw []byte) (*ParsedDocument, error) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 {
		return nil, ErrMalformedDocument
	}

	if data[0] != '<' {
		decoded, err := decodeBase64(string(data))
		if err != nil {
			return nil, ErrMalformedDocument
		}
		data = bytes.TrimSpace(decoded)
		if len(data) == 0 || data[0] != '<' {
			return nil, ErrMalformedDocument
		}
	}

	if containsDoctype(data) {
		return nil, ErrProhibitedDoctype
	}

	doc := &ParsedDocument{Attributes: map[string]string{}}

	var resp Response
	if err := xml.Unmarshal(data, &resp); err == nil {
		doc.Response = &resp
		doc.Issuer = issuerValue(resp.Issuer)
		doc.Destination = resp.Destination
		doc.InResponseTo = resp.InResponseTo
		doc.ResponseSigned = resp.Signature != nil
		doc.ClaimsEncrypted = len(resp.EncryptedAssertions) > 0
		doc.AssertionCount = len(resp.Assertions)
		if resp.Status != nil {
			doc.StatusCode = resp.Status.StatusCode.Value
			// The canonical value is urn:oasis:...:status:Success, but
			// non-canonical producers are classified by suffix too.
			doc.Success = strings.HasSuffix(doc.StatusCode, "Success")
		}
		if len(resp.Assertions) > 0 {
			doc.extractAssertion(resp.Assertions[0])
		}
		return doc, nil
	}

	var assertion Assertion
	if err := xml.Unmarshal(data, &assertion); err != nil {
		return nil, ErrMalformedDocument
	}
	doc.AssertionCount = 1
	doc.Issuer = issuerValue(assertion.Issuer)
	doc.extractAssertion(&assertion)
	return doc, nil
}

func (d *ParsedDocument) extractAssertion(a *Assertion) {
	d.Assertion = a
	d.ClaimsSigned = a.Signature != nil
	if d.Issuer == "" {
		d.Issuer = issuerValue(a.Issuer)
	}
	if a.Subject != nil && a.Subject.NameID != nil {
		d.NameID = a.Subject.NameID.Value
		d.NameIDFormat = a.Subject.NameID.Format
	}
	if a.Conditions != nil {
		d.NotBefore, _ = ParseTime(a.Conditions.NotBefore)
		d.NotOnOrAfter, _ = ParseTime(a.Conditions.NotOnOrAfter)
		if ar := a.Conditions.AudienceRestriction; ar != nil && len(ar.Audience) > 0 {
			d.Audience = ar.Audience[0]
		}
	}
	if a.AuthnStatement != nil {
		d.SessionIndex = a.AuthnStatement.SessionIndex
	}
	if a.AttributeStatement != nil {
		for _, attr := range a.AttributeStatement.Attributes {
			if len(attr.AttributeValues) > 0 {
				d.Attributes[attributeLocalName(attr.Name)] = attr.AttributeValues[0].Value
			}
		}
	}
}

// attributeLocalName reduces a URI-style attribute name to its local
// part. Claim URIs carry it in the last path segment and urn:oid names
// in the last colon segment; short names come back unchanged.
func attributeLocalName(name string) string {
	if i := strings.LastIndexAny(name, "/:"); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return name
}

// ValidateTiming checks the assertion's validity window against now and
// returns a warning per violated bound. An absent bound is not a
// violation; simulation output stays inspectable even when incomplete.
func (d *ParsedDocument) ValidateTiming(now time.Time) []string {
	var warnings []string
	if !d.NotBefore.IsZero() && now.Before(d.NotBefore) {
		warnings = append(warnings, "assertion is not yet valid")
	}
	if !d.NotOnOrAfter.IsZero() && !now.Before(d.NotOnOrAfter) {
		warnings = append(warnings, "assertion has expired")
	}
	return warnings
}

func issuerValue(i *Issuer) string {
	if i == nil {
		return ""
	}
	return i.Value
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(s); err == nil {
			return decoded, nil
		}
	}
	return nil, ErrMalformedDocument
}

func containsDoctype(data []byte) bool {
	return strings.Contains(strings.ToUpper(string(data)), "<!DOCTYPE")
}
