package saml

import (
	"fmt"
	"sort"
	"time"

	"github.com/fedsim/fedsim/pkg/models"
)

// clockSkew is the allowance subtracted from NotBefore so that
// assertions survive modest clock drift between parties.
const clockSkew = 5 * time.Minute

const defaultAssertionLifetime = 300 * time.Second

// Builder constructs assertions and responses for a configured
// environment. A nil signer leaves documents unsigned regardless of the
// environment's signing flags.
type Builder struct {
	signer Signer
}

func NewBuilder(signer Signer) *Builder {
	return &Builder{signer: signer}
}

// BuildAssertion produces an assertion for the given principal,
// addressed to recipient. Attribute names are translated through the
// environment's attribute mapping; unmapped names pass through as-is.
func (b *Builder) BuildAssertion(env *models.SamlEnvironment, nameID string, attributes map[string]string, recipient string) (*Assertion, error) {
	now := time.Now().UTC()
	lifetime := defaultAssertionLifetime
	if env.AssertionLifetime > 0 {
		lifetime = time.Duration(env.AssertionLifetime) * time.Second
	}
	notOnOrAfter := FormatTime(now.Add(lifetime))

	format := env.NameIDFormat
	if format == "" {
		format = NameIDFormatUnspecified
	}

	a := &Assertion{
		SAML:         NamespaceAssertion,
		ID:           GenerateID(),
		Version:      "2.0",
		IssueInstant: FormatTime(now),
		Issuer:       &Issuer{Value: env.EntityID},
		Subject: &Subject{
			NameID: &NameID{Format: format, Value: nameID},
			SubjectConfirmation: &SubjectConfirmation{
				Method: ConfirmationMethodBearer,
				SubjectConfirmationData: &SubjectConfirmationData{
					NotOnOrAfter: notOnOrAfter,
					Recipient:    recipient,
				},
			},
		},
		Conditions: &Conditions{
			NotBefore:    FormatTime(now.Add(-clockSkew)),
			NotOnOrAfter: notOnOrAfter,
			AudienceRestriction: &AudienceRestriction{
				Audience: []string{recipient},
			},
		},
		AuthnStatement: &AuthnStatement{
			AuthnInstant: FormatTime(now),
			SessionIndex: GenerateID(),
			AuthnContext: &AuthnContext{
				AuthnContextClassRef: AuthnContextPasswordProtectedTransport,
			},
		},
	}

	if len(attributes) > 0 {
		names := make([]string, 0, len(attributes))
		for name := range attributes {
			names = append(names, name)
		}
		sort.Strings(names)

		stmt := &AttributeStatement{Attributes: make([]Attribute, 0, len(names))}
		for _, name := range names {
			emitted := name
			if mapped, ok := env.AttributeMapping[name]; ok {
				emitted = mapped
			}
			stmt.Attributes = append(stmt.Attributes, Attribute{
				Name:            emitted,
				NameFormat:      "urn:oasis:names:tc:SAML:2.0:attrname-format:basic",
				AttributeValues: []AttributeValue{{Type: "xs:string", Value: attributes[name]}},
			})
		}
		a.AttributeStatement = stmt
	}

	if env.SignAssertions && b.signer != nil {
		if err := b.signer.SignAssertion(a); err != nil {
			return nil, fmt.Errorf("sign assertion: %w", err)
		}
	}
	return a, nil
}

// BuildResponse wraps an assertion in a successful Response. The
// InResponseTo attribute is emitted only for solicited responses; an
// empty inResponseTo yields an IdP-initiated response without it.
func (b *Builder) BuildResponse(env *models.SamlEnvironment, assertion *Assertion, destination, inResponseTo string) (*Response, error) {
	r := &Response{
		SAMLP:        NamespaceProtocol,
		SAML:         NamespaceAssertion,
		ID:           GenerateID(),
		Version:      "2.0",
		IssueInstant: FormatTime(time.Now().UTC()),
		Destination:  destination,
		InResponseTo: inResponseTo,
		Issuer:       &Issuer{Value: env.EntityID},
		Status:       &Status{StatusCode: StatusCode{Value: StatusSuccess}},
	}
	if assertion != nil {
		r.Assertions = []*Assertion{assertion}
	}

	if env.SignResponses && b.signer != nil {
		if err := b.signer.SignResponse(r); err != nil {
			return nil, fmt.Errorf("sign response: %w", err)
		}
	}
	return r, nil
}

// BuildErrorResponse produces a Response with a non-success status and
// no assertion.
func (b *Builder) BuildErrorResponse(env *models.SamlEnvironment, statusCode, message, destination, inResponseTo string) *Response {
	return &Response{
		SAMLP:        NamespaceProtocol,
		SAML:         NamespaceAssertion,
		ID:           GenerateID(),
		Version:      "2.0",
		IssueInstant: FormatTime(time.Now().UTC()),
		Destination:  destination,
		InResponseTo: inResponseTo,
		Issuer:       &Issuer{Value: env.EntityID},
		Status: &Status{
			StatusCode:    StatusCode{Value: statusCode},
			StatusMessage: message,
		},
	}
}

// BuildAuthnRequest produces the request a service provider environment
// sends to an identity provider's SSO endpoint.
func (b *Builder) BuildAuthnRequest(env *models.SamlEnvironment, destination string) *AuthnRequest {
	format := env.NameIDFormat
	if format == "" {
		format = NameIDFormatUnspecified
	}
	return &AuthnRequest{
		SAMLP:                       NamespaceProtocol,
		SAML:                        NamespaceAssertion,
		ID:                          GenerateID(),
		Version:                     "2.0",
		IssueInstant:                FormatTime(time.Now().UTC()),
		Destination:                 destination,
		ProtocolBinding:             BindingHTTPPost,
		AssertionConsumerServiceURL: env.ACSURL,
		Issuer:                      &Issuer{Value: env.EntityID},
		NameIDPolicy:                &NameIDPolicy{Format: format, AllowCreate: true},
	}
}
