package repo

import (
	"bytes"
	"fmt"

	"github.com/openindiana/pkg6/internal/digest"
	"github.com/openindiana/pkg6/internal/fmri"
	"github.com/openindiana/pkg6/internal/ipserr"
	"github.com/openindiana/pkg6/internal/manifest"
)

// VerifyResult reports the outcome of Verify for one publisher.
type VerifyResult struct {
	ManifestsChecked int
	FilesChecked     int
	Errors           []error
}

// Verify walks every manifest a publisher has published, confirming
// each "file" action's payload digest matches the bytes stored in the
// content store, per spec §9's testable property on digest mismatches
// (IntegrityError). It does not abort on the first mismatch; every
// problem found is collected and returned.
func (r *Repository) Verify(publisher string) (VerifyResult, error) {
	var result VerifyResult

	stems, err := r.driver.List("pkg/" + publisher)
	if err != nil {
		if ipserr.As(err, ipserr.KindNotFound) {
			return result, nil
		}
		return result, err
	}

	for _, stemDir := range stems {
		stem := decodeStemSegment(base(stemDir))
		versions, err := r.ListManifests(publisher, stem)
		if err != nil {
			return result, err
		}
		for _, v := range versions {
			f := fmri.FMRI{Scheme: "pkg", Publisher: publisher, Name: stem, Version: v, HasVersion: true}
			raw, err := r.GetManifestBytes(f)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("%s: %w", f.String(), err))
				continue
			}
			result.ManifestsChecked++

			m, parseErr := manifest.Parse(bytes.NewReader(raw))
			if parseErr != nil {
				if _, ok := parseErr.(manifest.ParseErrors); !ok {
					result.Errors = append(result.Errors, fmt.Errorf("%s: %w", f.String(), parseErr))
					continue
				}
			}
			r.verifyManifestFiles(f, m, &result)
		}
	}
	return result, nil
}

func (r *Repository) verifyManifestFiles(f fmri.FMRI, m *manifest.Manifest, result *VerifyResult) {
	for _, a := range m.Actions {
		if a.Kind != manifest.KindFile || a.Payload == nil {
			continue
		}
		result.FilesChecked++
		if err := r.verifyOneFile(*a.Payload); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s %s: %w", f.String(), a.Path, err))
		}
	}
}

func (r *Repository) verifyOneFile(d digest.Digest) error {
	content, err := r.driver.GetContent(contentPath(d.Hex))
	if err != nil {
		return err
	}
	return digest.Verify(d, bytes.NewReader(content))
}
