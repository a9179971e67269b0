// Package intunexml implements the Intune manifest codec (C4):
// Detection.xml's fixed-order XML structure, emitted and parsed
// bit-exactly (spec.md §4.4).
package intunexml

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"

	"github.com/MANCHTOOLS/pkgforge/internal/intunecrypto"
	"github.com/MANCHTOOLS/pkgforge/internal/pkgerrors"
)

const (
	// ToolVersion mimics the reference Win32 Content Prep Tool's
	// self-reported version, carried as an attribute (not one of the
	// fixed child elements spec.md §4.4 orders).
	ToolVersion = "1.8.4.0"
	// ProfileIdentifier is the constant profile identifier in every
	// Detection.xml.
	ProfileIdentifier = "ProfileVersion1"
	// FileDigestAlgorithm is the only digest algorithm this codec emits.
	FileDigestAlgorithm = "SHA256"
	// EncryptedFileName is the standard name of the encrypted inner
	// archive entry.
	EncryptedFileName = "IntunePackage.intunewin"

	xmlDeclaration = `<?xml version="1.0" encoding="utf-8"?>`
)

// EncryptionInfo is the XML projection of intunecrypto.Material, in the
// fixed child order spec.md §4.4 requires: EncryptionKey, MacKey,
// InitializationVector, Mac, ProfileIdentifier, FileDigest,
// FileDigestAlgorithm.
type EncryptionInfo struct {
	EncryptionKey        string `xml:"EncryptionKey"`
	MacKey               string `xml:"MacKey"`
	InitializationVector string `xml:"InitializationVector"`
	Mac                  string `xml:"Mac"`
	ProfileIdentifier    string `xml:"ProfileIdentifier"`
	FileDigest           string `xml:"FileDigest"`
	FileDigestAlgorithm  string `xml:"FileDigestAlgorithm"`
}

// ApplicationInfo is the root element of Detection.xml. Child order is
// fixed: Name, UnencryptedContentSize, FileName, SetupFile,
// EncryptionInfo.
type ApplicationInfo struct {
	XMLName                xml.Name       `xml:"ApplicationInfo"`
	XSI                    string         `xml:"xmlns:xsi,attr"`
	XSD                    string         `xml:"xmlns:xsd,attr"`
	ToolVersion            string         `xml:"ToolVersion,attr"`
	Name                   string         `xml:"Name"`
	UnencryptedContentSize int64          `xml:"UnencryptedContentSize"`
	FileName               string         `xml:"FileName"`
	SetupFile              string         `xml:"SetupFile"`
	EncryptionInfo         EncryptionInfo `xml:"EncryptionInfo"`
}

// Options configures Generate.
type Options struct {
	Name                   string
	SetupFile              string
	UnencryptedContentSize int64
	Material               *intunecrypto.Material
}

// Generate builds the Detection.xml bytes for opts: a single XML
// declaration line, CRLF-separated indented elements (matching the
// reference tool's observed output — spec.md §9 Open Question, resolved
// the way michelbragaguimaraes/LetsGoIntunePackager's metadata.go
// resolves it), standard Base64 for every binary field.
func Generate(opts Options) ([]byte, error) {
	m := opts.Material
	info := ApplicationInfo{
		XSI:                    "http://www.w3.org/2001/XMLSchema-instance",
		XSD:                    "http://www.w3.org/2001/XMLSchema",
		ToolVersion:            ToolVersion,
		Name:                   opts.Name,
		UnencryptedContentSize: opts.UnencryptedContentSize,
		FileName:               EncryptedFileName,
		SetupFile:              opts.SetupFile,
		EncryptionInfo: EncryptionInfo{
			EncryptionKey:        base64.StdEncoding.EncodeToString(m.EncKey[:]),
			MacKey:               base64.StdEncoding.EncodeToString(m.MacKey[:]),
			InitializationVector: base64.StdEncoding.EncodeToString(m.IV[:]),
			Mac:                  base64.StdEncoding.EncodeToString(m.Mac[:]),
			ProfileIdentifier:    ProfileIdentifier,
			FileDigest:           base64.StdEncoding.EncodeToString(m.FileDigest[:]),
			FileDigestAlgorithm:  FileDigestAlgorithm,
		},
	}

	body, err := xml.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal Detection.xml: %w", err)
	}

	var out bytes.Buffer
	out.WriteString(xmlDeclaration)
	out.WriteString("\r\n")
	out.Write(bytes.ReplaceAll(body, []byte("\n"), []byte("\r\n")))

	return out.Bytes(), nil
}

// expectedOrder is the fixed child sequence of ApplicationInfo enforced
// by Parse (spec.md §4.4: "Parser is strict: unknown or out-of-order
// elements are rejected").
var expectedOrder = []string{
	"Name", "UnencryptedContentSize", "FileName", "SetupFile", "EncryptionInfo",
}

var expectedEncryptionOrder = []string{
	"EncryptionKey", "MacKey", "InitializationVector", "Mac",
	"ProfileIdentifier", "FileDigest", "FileDigestAlgorithm",
}

// Parse decodes Detection.xml, rejecting any document whose top-level
// children (or EncryptionInfo's children) are missing, duplicated,
// unknown, or out of order.
func Parse(data []byte) (*ApplicationInfo, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	root, err := nextStart(dec)
	if err != nil {
		return nil, malformed("reading root element", err)
	}
	if root.Name.Local != "ApplicationInfo" {
		return nil, malformed(fmt.Sprintf("unexpected root element %q", root.Name.Local), nil)
	}

	info := &ApplicationInfo{XMLName: root.Name}
	for _, a := range root.Attr {
		switch a.Name.Local {
		case "xsi":
			info.XSI = a.Value
		case "xsd":
			info.XSD = a.Value
		case "ToolVersion":
			info.ToolVersion = a.Value
		}
	}

	idx := 0
	for idx < len(expectedOrder) {
		el, err := nextStart(dec)
		if err != nil {
			return nil, malformed(fmt.Sprintf("reading element %q", expectedOrder[idx]), err)
		}
		if el.Name.Local != expectedOrder[idx] {
			return nil, malformed(fmt.Sprintf("expected element %q, got %q", expectedOrder[idx], el.Name.Local), nil)
		}
		switch el.Name.Local {
		case "Name":
			if info.Name, err = decodeCharData(dec); err != nil {
				return nil, malformed("Name", err)
			}
		case "UnencryptedContentSize":
			s, err := decodeCharData(dec)
			if err != nil {
				return nil, malformed("UnencryptedContentSize", err)
			}
			if _, err := fmt.Sscanf(s, "%d", &info.UnencryptedContentSize); err != nil {
				return nil, malformed("UnencryptedContentSize not an integer", err)
			}
		case "FileName":
			if info.FileName, err = decodeCharData(dec); err != nil {
				return nil, malformed("FileName", err)
			}
		case "SetupFile":
			if info.SetupFile, err = decodeCharData(dec); err != nil {
				return nil, malformed("SetupFile", err)
			}
		case "EncryptionInfo":
			ei, err := parseEncryptionInfo(dec)
			if err != nil {
				return nil, err
			}
			info.EncryptionInfo = *ei
		}
		idx++
	}

	// Only whitespace may precede the closing EncryptionInfo and
	// ApplicationInfo tags, so trailing extra elements are rejected too.
	for _, want := range []string{"EncryptionInfo", "ApplicationInfo"} {
		tok, err := dec.Token()
		for _, isText := tok.(xml.CharData); err == nil && isText; _, isText = tok.(xml.CharData) {
			tok, err = dec.Token()
		}
		if end, ok := tok.(xml.EndElement); err != nil || !ok || end.Name.Local != want {
			return nil, malformed(fmt.Sprintf("unexpected content before end of %s", want), err)
		}
	}

	return info, nil
}

func parseEncryptionInfo(dec *xml.Decoder) (*EncryptionInfo, error) {
	ei := &EncryptionInfo{}
	for _, name := range expectedEncryptionOrder {
		el, err := nextStart(dec)
		if err != nil {
			return nil, malformed(fmt.Sprintf("reading EncryptionInfo/%s", name), err)
		}
		if el.Name.Local != name {
			return nil, malformed(fmt.Sprintf("expected EncryptionInfo/%s, got %s", name, el.Name.Local), nil)
		}
		val, err := decodeCharData(dec)
		if err != nil {
			return nil, malformed("EncryptionInfo/"+name, err)
		}
		switch name {
		case "EncryptionKey":
			ei.EncryptionKey = val
		case "MacKey":
			ei.MacKey = val
		case "InitializationVector":
			ei.InitializationVector = val
		case "Mac":
			ei.Mac = val
		case "ProfileIdentifier":
			ei.ProfileIdentifier = val
		case "FileDigest":
			ei.FileDigest = val
		case "FileDigestAlgorithm":
			ei.FileDigestAlgorithm = val
		}
	}
	return ei, nil
}

// nextStart returns the next start element, skipping char data and
// comments, but erroring at EOF.
func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

// decodeCharData reads the character data up to the next end element and
// returns it as a string.
func decodeCharData(dec *xml.Decoder) (string, error) {
	var buf bytes.Buffer
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.EndElement:
			return buf.String(), nil
		case xml.StartElement:
			return "", fmt.Errorf("unexpected nested element %q", t.Name.Local)
		}
	}
}

func malformed(context string, err error) error {
	return pkgerrors.New(pkgerrors.MalformedManifest, context, err)
}
