// Package pkgdescriptor implements the package-descriptor codec (C10):
// the PackageInfo and Distribution XML documents every macOS flat
// package carries, following the same declaration-plus-MarshalIndent
// pattern the Intune manifest codec uses in internal/intunexml.
package pkgdescriptor

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// PackageInfoOptions configures GeneratePackageInfo.
type PackageInfoOptions struct {
	Identifier       string
	Version          string
	InstallLocation  string
	InstallKBytes    int64
	NumberOfFiles    int64
	HasPreinstall    bool
	HasPostinstall   bool
}

type pkgInfoScripts struct {
	Preinstall  *scriptRef `xml:"preinstall,omitempty"`
	Postinstall *scriptRef `xml:"postinstall,omitempty"`
}

type scriptRef struct {
	File string `xml:"file,attr"`
}

type pkgInfoPayload struct {
	InstallKBytes int64 `xml:"installKBytes,attr"`
	NumberOfFiles int64 `xml:"numberOfFiles,attr"`
}

type pkgInfoXML struct {
	XMLName         xml.Name        `xml:"pkg-info"`
	FormatVersion   int             `xml:"format-version,attr"`
	Identifier      string          `xml:"identifier,attr"`
	Version         string          `xml:"version,attr"`
	InstallLocation string          `xml:"install-location,attr"`
	Auth            string          `xml:"auth,attr"`
	Payload         pkgInfoPayload  `xml:"payload"`
	Scripts         *pkgInfoScripts `xml:"scripts,omitempty"`
}

// GeneratePackageInfo emits the PackageInfo XML contract (spec.md
// §4.10): a <scripts> block appears only when at least one of
// HasPreinstall/HasPostinstall is set, and only the children whose
// script exists are written.
func GeneratePackageInfo(opts PackageInfoOptions) ([]byte, error) {
	doc := pkgInfoXML{
		FormatVersion:   2,
		Identifier:      opts.Identifier,
		Version:         opts.Version,
		InstallLocation: opts.InstallLocation,
		Auth:            "root",
		Payload: pkgInfoPayload{
			InstallKBytes: opts.InstallKBytes,
			NumberOfFiles: opts.NumberOfFiles,
		},
	}
	if opts.HasPreinstall || opts.HasPostinstall {
		scripts := &pkgInfoScripts{}
		if opts.HasPreinstall {
			scripts.Preinstall = &scriptRef{File: "./preinstall"}
		}
		if opts.HasPostinstall {
			scripts.Postinstall = &scriptRef{File: "./postinstall"}
		}
		doc.Scripts = scripts
	}

	return marshalWithDeclaration(doc)
}

// DistributionOptions configures GenerateDistribution.
type DistributionOptions struct {
	Title         string
	Identifier    string
	Version       string
	InstallKBytes int64
}

type distTitle struct {
	Value string `xml:",chardata"`
}

type distOptions struct {
	Customize            string `xml:"customize,attr"`
	AllowExternalScripts string `xml:"allow-external-scripts,attr"`
}

type distDomains struct {
	EnableAnywhere string `xml:"enable_anywhere,attr"`
}

type distChoicesOutline struct {
	Line distLine `xml:"line"`
}

type distLine struct {
	Choice string `xml:"choice,attr"`
}

type distChoice struct {
	ID     string      `xml:"id,attr"`
	PkgRef distPkgRefID `xml:"pkg-ref"`
}

type distPkgRefID struct {
	ID string `xml:"id,attr"`
}

type distPkgRef struct {
	ID            string `xml:"id,attr"`
	InstallKBytes int64  `xml:"installKBytes,attr"`
	Version       string `xml:"version,attr"`
	Auth          string `xml:"auth,attr"`
	Value         string `xml:",chardata"`
}

type distXML struct {
	XMLName        xml.Name           `xml:"installer-script"`
	MinSpecVersion string             `xml:"minSpecVersion,attr"`
	Title          distTitle          `xml:"title"`
	Options        distOptions        `xml:"options"`
	Domains        distDomains        `xml:"domains"`
	ChoicesOutline distChoicesOutline `xml:"choices-outline"`
	Choice         distChoice         `xml:"choice"`
	PkgRef         distPkgRef         `xml:"pkg-ref"`
}

const choiceID = "choice1"

// GenerateDistribution emits the Distribution XML contract (spec.md
// §4.10).
func GenerateDistribution(opts DistributionOptions) ([]byte, error) {
	doc := distXML{
		MinSpecVersion: "1.000000",
		Title:          distTitle{Value: opts.Title},
		Options:        distOptions{Customize: "never", AllowExternalScripts: "no"},
		Domains:        distDomains{EnableAnywhere: "true"},
		ChoicesOutline: distChoicesOutline{Line: distLine{Choice: choiceID}},
		Choice: distChoice{
			ID:     choiceID,
			PkgRef: distPkgRefID{ID: opts.Identifier},
		},
		PkgRef: distPkgRef{
			ID:            opts.Identifier,
			InstallKBytes: opts.InstallKBytes,
			Version:       opts.Version,
			Auth:          "Root",
			Value:         "#base.pkg",
		},
	}

	return marshalWithDeclaration(doc)
}

func marshalWithDeclaration(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("pkgdescriptor: marshal: %w", err)
	}
	var out bytes.Buffer
	out.WriteString(xml.Header)
	out.Write(body)
	out.WriteByte('\n')
	return out.Bytes(), nil
}
