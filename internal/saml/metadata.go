package saml

import (
	"encoding/xml"

	"github.com/fedsim/fedsim/pkg/models"
)

// EntityDescriptor is the metadata root for one SAML entity.
type EntityDescriptor struct {
	XMLName          xml.Name          `xml:"urn:oasis:names:tc:SAML:2.0:metadata EntityDescriptor"`
	DS               string            `xml:"xmlns:ds,attr"`
	EntityID         string            `xml:"entityID,attr"`
	IDPSSODescriptor *IDPSSODescriptor `xml:"IDPSSODescriptor,omitempty"`
	SPSSODescriptor  *SPSSODescriptor  `xml:"SPSSODescriptor,omitempty"`
}

// IDPSSODescriptor advertises an identity provider's endpoints and keys.
type IDPSSODescriptor struct {
	XMLName                    xml.Name              `xml:"urn:oasis:names:tc:SAML:2.0:metadata IDPSSODescriptor"`
	ProtocolSupportEnumeration string                `xml:"protocolSupportEnumeration,attr"`
	WantAuthnRequestsSigned    bool                  `xml:"WantAuthnRequestsSigned,attr,omitempty"`
	KeyDescriptors             []KeyDescriptor       `xml:"KeyDescriptor,omitempty"`
	SingleLogoutServices       []SingleLogoutService `xml:"SingleLogoutService,omitempty"`
	NameIDFormats              []string              `xml:"NameIDFormat,omitempty"`
	SingleSignOnServices       []SingleSignOnService `xml:"SingleSignOnService"`
}

// SPSSODescriptor advertises a service provider's endpoints and keys.
type SPSSODescriptor struct {
	XMLName                    xml.Name                   `xml:"urn:oasis:names:tc:SAML:2.0:metadata SPSSODescriptor"`
	ProtocolSupportEnumeration string                     `xml:"protocolSupportEnumeration,attr"`
	AuthnRequestsSigned        bool                       `xml:"AuthnRequestsSigned,attr,omitempty"`
	WantAssertionsSigned       bool                       `xml:"WantAssertionsSigned,attr,omitempty"`
	KeyDescriptors             []KeyDescriptor            `xml:"KeyDescriptor,omitempty"`
	SingleLogoutServices       []SingleLogoutService      `xml:"SingleLogoutService,omitempty"`
	NameIDFormats              []string                   `xml:"NameIDFormat,omitempty"`
	AssertionConsumerServices  []AssertionConsumerService `xml:"AssertionConsumerService"`
}

// KeyDescriptor publishes a certificate for signing or encryption.
type KeyDescriptor struct {
	XMLName xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata KeyDescriptor"`
	Use     string   `xml:"use,attr,omitempty"`
	KeyInfo KeyInfo  `xml:"KeyInfo"`
}

type SingleSignOnService struct {
	XMLName  xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata SingleSignOnService"`
	Binding  string   `xml:"Binding,attr"`
	Location string   `xml:"Location,attr"`
}

type SingleLogoutService struct {
	XMLName  xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata SingleLogoutService"`
	Binding  string   `xml:"Binding,attr"`
	Location string   `xml:"Location,attr"`
}

type AssertionConsumerService struct {
	XMLName   xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:metadata AssertionConsumerService"`
	Binding   string   `xml:"Binding,attr"`
	Location  string   `xml:"Location,attr"`
	Index     int      `xml:"index,attr"`
	IsDefault bool     `xml:"isDefault,attr,omitempty"`
}

// BuildMetadata renders an environment as an EntityDescriptor. The
// certificate is the base64 DER of the environment's signing cert; an
// empty string omits the KeyDescriptor.
func BuildMetadata(env *models.SamlEnvironment, certBase64 string) *EntityDescriptor {
	descriptor := &EntityDescriptor{
		DS:       NamespaceDSig,
		EntityID: env.EntityID,
	}

	var keys []KeyDescriptor
	if certBase64 != "" {
		keys = []KeyDescriptor{{
			Use:     "signing",
			KeyInfo: KeyInfo{X509Data: &X509Data{X509Certificate: certBase64}},
		}}
	}

	format := env.NameIDFormat
	if format == "" {
		format = NameIDFormatUnspecified
	}

	var slo []SingleLogoutService
	if env.SLOURL != "" {
		slo = []SingleLogoutService{
			{Binding: BindingHTTPRedirect, Location: env.SLOURL},
			{Binding: BindingHTTPPost, Location: env.SLOURL},
		}
	}

	switch env.Role {
	case models.RoleIdentityProvider:
		descriptor.IDPSSODescriptor = &IDPSSODescriptor{
			ProtocolSupportEnumeration: NamespaceProtocol,
			KeyDescriptors:             keys,
			SingleLogoutServices:       slo,
			NameIDFormats:              []string{format},
			SingleSignOnServices: []SingleSignOnService{
				{Binding: BindingHTTPRedirect, Location: env.SSOURL},
				{Binding: BindingHTTPPost, Location: env.SSOURL},
			},
		}
	case models.RoleServiceProvider:
		descriptor.SPSSODescriptor = &SPSSODescriptor{
			ProtocolSupportEnumeration: NamespaceProtocol,
			WantAssertionsSigned:       env.SignAssertions,
			KeyDescriptors:             keys,
			SingleLogoutServices:       slo,
			NameIDFormats:              []string{format},
			AssertionConsumerServices: []AssertionConsumerService{
				{Binding: BindingHTTPPost, Location: env.ACSURL, Index: 0, IsDefault: true},
			},
		}
	}
	return descriptor
}

// MarshalMetadata serializes metadata with the usual XML declaration.
func MarshalMetadata(descriptor *EntityDescriptor) ([]byte, error) {
	data, err := xml.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), data...), nil
}
