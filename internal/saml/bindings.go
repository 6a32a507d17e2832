package saml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"html"
	"io"
)

// EncodePost encodes a SAML message for the HTTP-POST binding: XML,
// then base64, no compression (Bindings Section 3.5.4).
func EncodePost(message interface{}) (string, error) {
	data, err := xml.MarshalIndent(message, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePost reverses EncodePost.
func DecodePost(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return data, nil
}

// EncodeRedirect encodes a SAML message for the HTTP-Redirect binding:
// XML, raw DEFLATE, then base64 (Bindings Section 3.4.4.1). The result
// still needs URL escaping when placed in a query string.
func EncodeRedirect(message interface{}) (string, error) {
	data, err := xml.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	var compressed bytes.Buffer
	writer, err := flate.NewWriter(&compressed, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("create deflate writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return "", fmt.Errorf("compress message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("flush compressed message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(compressed.Bytes()), nil
}

// DecodeRedirect reverses EncodeRedirect. Inputs that were never
// compressed fall back to the plain base64 payload, since some SAML
// stacks skip DEFLATE on redirect.
func DecodeRedirect(encoded string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}

	reader := flate.NewReader(bytes.NewReader(compressed))
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		if bytes.HasPrefix(bytes.TrimSpace(compressed), []byte("<")) {
			return compressed, nil
		}
		return nil, fmt.Errorf("inflate message: %w", err)
	}
	return decompressed, nil
}

// GeneratePostForm renders the auto-submitting HTML form the HTTP-POST
// binding delivers messages with (Bindings Section 3.5.4). Destination
// and relay state are escaped before embedding.
func GeneratePostForm(destination string, message interface{}, relayState string, isRequest bool) (string, error) {
	encoded, err := EncodePost(message)
	if err != nil {
		return "", err
	}

	paramName := "SAMLResponse"
	if isRequest {
		paramName = "SAMLRequest"
	}

	if len(relayState) > 1024 {
		relayState = relayState[:1024]
	}
	relayStateInput := ""
	if relayState != "" {
		relayStateInput = fmt.Sprintf(`<input type="hidden" name="RelayState" value="%s"/>`, html.EscapeString(relayState))
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>SAML POST Binding</title>
</head>
<body onload="document.forms[0].submit()">
    <noscript>
        <p>JavaScript is required. Please click the button below to continue.</p>
    </noscript>
    <form method="POST" action="%s">
        <input type="hidden" name="%s" value="%s"/>
        %s
        <noscript>
            <input type="submit" value="Continue"/>
        </noscript>
    </form>
</body>
</html>`, html.EscapeString(destination), paramName, encoded, relayStateInput)

	return page, nil
}

// ParseAuthnRequest decodes a binding-encoded AuthnRequest. redirect
// selects DEFLATE handling for query-string payloads.
func ParseAuthnRequest(encoded string, redirect bool) (*AuthnRequest, error) {
	var (
		data []byte
		err  error
	)
	if redirect {
		data, err = DecodeRedirect(encoded)
	} else {
		data, err = DecodePost(encoded)
	}
	if err != nil {
		return nil, err
	}

	if containsDoctype(data) {
		return nil, ErrProhibitedDoctype
	}

	var req AuthnRequest
	if err := xml.Unmarshal(data, &req); err != nil {
		return nil, ErrMalformedDocument
	}
	return &req, nil
}
