package repo

import (
	"bytes"
	"io"
	"time"

	"github.com/openindiana/pkg6/internal/digest"
	"github.com/openindiana/pkg6/internal/fmri"
	"github.com/openindiana/pkg6/internal/ipserr"
	"github.com/openindiana/pkg6/internal/manifest"
	"github.com/openindiana/pkg6/internal/uuid"
)

// Txn is an open publication transaction, mirroring the
// begin/set_publisher/add_file/update_manifest/commit/abort protocol of
// spec §4.4, staged the way blobwriter.go stages an upload under a
// per-id workspace before Commit moves it into the content store.
type Txn struct {
	repo      *Repository
	id        string
	publisher string
	fmri      fmri.FMRI
	hasFMRI   bool
	staged    []digest.Digest // content digests staged this transaction
	committed bool
	aborted   bool
}

// Begin opens a new transaction against the repository.
func (r *Repository) Begin() (*Txn, error) {
	id := uuid.NewString()
	t := &Txn{repo: r, id: id}

	if err := r.driver.PutContent(transStartedAtPath(id), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
		return nil, err
	}
	return t, nil
}

// ID returns the transaction's identifier, which names its trans/<id>
// workspace.
func (t *Txn) ID() string { return t.id }

// SetPublisher pins the package FMRI this transaction will publish,
// validating the publisher is known to the repository.
func (t *Txn) SetPublisher(f fmri.FMRI) error {
	if t.committed || t.aborted {
		return ipserr.New(ipserr.KindInvariant, "transaction already closed").WithDetail(t.id)
	}
	pubs, err := t.repo.Publishers()
	if err != nil {
		return err
	}
	found := false
	for _, p := range pubs {
		if p == f.Publisher {
			found = true
			break
		}
	}
	if !found {
		return ipserr.New(ipserr.KindNotFound, "unknown publisher").WithDetail(f.Publisher)
	}
	t.publisher = f.Publisher
	t.fmri = f
	t.hasFMRI = true
	return nil
}

// AddFile stages r's content under this transaction's workspace, keyed
// by its digest, for commit-time promotion into the content store. The
// staged bytes are discarded on Abort.
func (t *Txn) AddFile(d digest.Digest, r io.Reader) error {
	if t.committed || t.aborted {
		return ipserr.New(ipserr.KindInvariant, "transaction already closed").WithDetail(t.id)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return ipserr.Wrap(ipserr.KindIO, err, "reading staged file content")
	}
	if err := digest.Verify(d, bytes.NewReader(data)); err != nil {
		return err
	}

	if err := t.repo.driver.PutContent(transStagedFilePath(t.id, d.Hex), data); err != nil {
		return err
	}
	t.staged = append(t.staged, d)
	return nil
}

// UpdateManifest replaces this transaction's pending manifest bytes.
func (t *Txn) UpdateManifest(m *manifest.Manifest) error {
	if t.committed || t.aborted {
		return ipserr.New(ipserr.KindInvariant, "transaction already closed").WithDetail(t.id)
	}
	var buf bytes.Buffer
	if err := manifest.Write(&buf, m); err != nil {
		return err
	}
	return t.repo.driver.PutContent(transManifestPath(t.id), buf.Bytes())
}

// Commit finalizes the transaction: every staged file referenced by a
// "file" action in the pending manifest must be present; content is
// promoted into the content store (dedup-on-exists, per
// storagedriver.Move's semantics), the manifest is written to its final
// path, the transaction workspace is removed, and the publisher's
// catalog is regenerated in full by Refresh.
func (t *Txn) Commit() (fmri.FMRI, error) {
	if t.committed || t.aborted {
		return fmri.FMRI{}, ipserr.New(ipserr.KindInvariant, "transaction already closed").WithDetail(t.id)
	}
	if !t.hasFMRI {
		return fmri.FMRI{}, ipserr.New(ipserr.KindInvariant, "transaction has no publisher/fmri set").WithDetail(t.id)
	}

	raw, err := t.repo.driver.GetContent(transManifestPath(t.id))
	if err != nil {
		return fmri.FMRI{}, ipserr.Wrap(ipserr.KindInvariant, err, "transaction has no pending manifest").WithDetail(t.id)
	}
	m, err := manifest.Parse(bytes.NewReader(raw))
	if err != nil {
		if _, ok := err.(manifest.ParseErrors); !ok {
			return fmri.FMRI{}, err
		}
	}

	if err := t.verifyFileActionsStaged(m); err != nil {
		return fmri.FMRI{}, err
	}

	for _, d := range t.staged {
		dst := contentPath(d.Hex)
		if _, err := t.repo.driver.Stat(dst); err == nil {
			// already present: discard the staged copy (dedup).
			if err := t.repo.driver.Delete(transStagedFilePath(t.id, d.Hex)); err != nil {
				return fmri.FMRI{}, err
			}
			continue
		}
		if err := t.repo.driver.Move(transStagedFilePath(t.id, d.Hex), dst); err != nil {
			return fmri.FMRI{}, err
		}
	}

	if err := t.repo.driver.PutContent(manifestPath(t.fmri), raw); err != nil {
		return fmri.FMRI{}, err
	}

	if err := t.repo.driver.Delete(transDirPath(t.id)); err != nil {
		t.repo.log.WithError(err).WithField("txn", t.id).Warn("failed to remove transaction workspace after commit")
	}

	t.committed = true

	if err := t.repo.Refresh(t.publisher); err != nil {
		return t.fmri, err
	}
	return t.fmri, nil
}

// Abort discards the transaction and everything staged within it.
func (t *Txn) Abort() error {
	if t.committed || t.aborted {
		return ipserr.New(ipserr.KindInvariant, "transaction already closed").WithDetail(t.id)
	}
	t.aborted = true
	return t.repo.driver.Delete(transDirPath(t.id))
}

func (t *Txn) verifyFileActionsStaged(m *manifest.Manifest) error {
	staged := make(map[string]bool, len(t.staged))
	for _, d := range t.staged {
		staged[d.Hex] = true
	}
	for _, a := range m.Actions {
		if a.Kind != manifest.KindFile || a.Payload == nil {
			continue
		}
		if !staged[a.Payload.Hex] {
			if _, err := t.repo.driver.Stat(contentPath(a.Payload.Hex)); err != nil {
				return ipserr.New(ipserr.KindInvariant, "file action references unstaged, unknown content").WithDetail(a.Payload.Hex)
			}
		}
	}
	return nil
}

// GCTransactions removes transaction workspaces older than maxAge that
// were never committed or aborted (e.g. a client that disconnected
// mid-publish), the way garbagecollect.go sweeps orphaned upload
// directories by their recorded start time.
func (r *Repository) GCTransactions(maxAge time.Duration) (int, error) {
	entries, err := r.driver.List("trans")
	if err != nil {
		if ipserr.As(err, ipserr.KindNotFound) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	now := time.Now().UTC()
	for _, dir := range entries {
		id := base(dir)
		raw, err := r.driver.GetContent(transStartedAtPath(id))
		if err != nil {
			continue
		}
		startedAt, err := time.Parse(time.RFC3339, string(raw))
		if err != nil {
			continue
		}
		if now.Sub(startedAt) <= maxAge {
			continue
		}
		if err := r.driver.Delete(transDirPath(id)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
