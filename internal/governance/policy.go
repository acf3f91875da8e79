package governance

import (
	"encoding/hex"
	"sort"

	"grafana-steward/internal/grafana"
	"grafana-steward/pkg/config"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Policy enforces the tag-based provenance discipline: only dashboards
// carrying every write tag may be mutated, and when read tags are configured
// only dashboards carrying them are exposed to readers. Pure functions, no
// I/O; documents are never mutated in place.
type Policy struct {
	writeTags []string
	readTags  []string
	folder    string
}

// NewPolicy derives the policy from validated configuration.
func NewPolicy(cfg *config.Config) (*Policy, error) {
	if len(cfg.Tags.Write) == 0 {
		return nil, &InvalidArgumentError{Msg: "policy: write tags must not be empty"}
	}
	if extra, _ := lo.Difference(cfg.Tags.Read, cfg.Tags.Write); len(extra) > 0 {
		return nil, &InvalidArgumentError{Msg: "policy: read tags must be a subset of write tags"}
	}

	folder := cfg.Folder
	if folder == "" {
		folder = config.FolderUnrestricted
	}
	return &Policy{
		writeTags: lo.Uniq(cfg.Tags.Write),
		readTags:  lo.Uniq(cfg.Tags.Read),
		folder:    folder,
	}, nil
}

// WriteTags returns the required write tag set, sorted.
func (p *Policy) WriteTags() []string {
	tags := append([]string(nil), p.writeTags...)
	sort.Strings(tags)
	return tags
}

// HasWriteAccess reports whether every write tag is present on the document.
func (p *Policy) HasWriteAccess(doc grafana.Document) bool {
	return lo.Every(doc.Tags(), p.writeTags)
}

// HasReadAccess reports whether the document may be exposed to readers. An
// empty read tag set leaves reads open. Callers surfacing a denial must
// report not-found, never permission-denied.
func (p *Policy) HasReadAccess(doc grafana.Document) bool {
	if len(p.readTags) == 0 {
		return true
	}
	return lo.Every(doc.Tags(), p.readTags)
}

// ReadGated reports whether search hits need tag filtering at all.
func (p *Policy) ReadGated() bool { return len(p.readTags) > 0 }

// HitReadable applies the read gate to a search hit's tags.
func (p *Policy) HitReadable(tags []string) bool {
	if len(p.readTags) == 0 {
		return true
	}
	return lo.Every(tags, p.readTags)
}

// RequireWriteAccess gates update/delete on the existing document's tags.
func (p *Policy) RequireWriteAccess(doc grafana.Document, operation string) error {
	if p.HasWriteAccess(doc) {
		return nil
	}
	return &AccessDeniedError{Operation: operation, RequiredTags: p.WriteTags()}
}

// StampWriteTags returns a copy whose tags are the union of the existing tags
// and the write tags. Stamping twice yields the same tag set.
func (p *Policy) StampWriteTags(doc grafana.Document) (grafana.Document, error) {
	stamped, err := doc.Clone()
	if err != nil {
		return nil, err
	}

	tags := stamped.Tags()
	for _, tag := range p.writeTags {
		if !lo.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	stamped.SetTags(tags)
	return stamped, nil
}

// NewUID mints a dashboard identifier: 10 lowercase hex characters. Not
// globally coordinated; the backend uniqueness check is the authority.
func NewUID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:10]
}

// AssignUID returns a copy with a freshly minted uid when the document has
// none. A non-empty uid is never overwritten.
func (p *Policy) AssignUID(doc grafana.Document) (grafana.Document, error) {
	if doc.UID() != "" {
		return doc, nil
	}
	assigned, err := doc.Clone()
	if err != nil {
		return nil, err
	}
	assigned.SetUID(NewUID())
	return assigned, nil
}

// ValidateFolderAccess checks the configured folder restriction. An empty
// folder reference means the root folder.
func (p *Policy) ValidateFolderAccess(folderUID string) bool {
	if p.folder == config.FolderUnrestricted {
		return true
	}
	if folderUID == "" {
		// Root operations are only allowed when root is the restriction.
		return false
	}
	return folderUID == p.folder
}

func (p *Policy) requireFolderAccess(folderUID string) error {
	if p.ValidateFolderAccess(folderUID) {
		return nil
	}
	return &AccessDeniedError{
		Operation:    "write to folder " + folderUID,
		RequiredTags: p.WriteTags(),
	}
}

// PrepareForCreate validates folder access, stamps write tags, assigns a uid
// when absent and strips any stale version. Creation must never carry one.
func (p *Policy) PrepareForCreate(doc grafana.Document, folderUID string) (grafana.Document, error) {
	if err := p.requireFolderAccess(folderUID); err != nil {
		return nil, err
	}

	prepared, err := p.StampWriteTags(doc)
	if err != nil {
		return nil, err
	}
	if prepared.UID() == "" {
		prepared.SetUID(NewUID())
	}
	delete(prepared, "version")
	return prepared, nil
}

// PrepareForUpdate validates folder access and stamps write tags. The uid and
// version are left alone; version continuity is the caller's concern.
func (p *Policy) PrepareForUpdate(doc grafana.Document, folderUID string) (grafana.Document, error) {
	if err := p.requireFolderAccess(folderUID); err != nil {
		return nil, err
	}
	return p.StampWriteTags(doc)
}

// PrepareCopy derives a creatable document from a source dashboard: strips
// backend-assigned identity, retitles, resolves the target uid (explicit
// target wins, otherwise the uid is cleared so PrepareForCreate mints one)
// and delegates to PrepareForCreate.
func (p *Policy) PrepareCopy(source grafana.Document, newTitle, folderUID, targetUID string) (grafana.Document, error) {
	doc, err := source.Clone()
	if err != nil {
		return nil, err
	}

	delete(doc, "id")
	delete(doc, "version")
	delete(doc, "url")
	doc.SetTitle(newTitle)

	if targetUID != "" {
		doc.SetUID(targetUID)
	} else {
		delete(doc, "uid")
	}

	return p.PrepareForCreate(doc, folderUID)
}
