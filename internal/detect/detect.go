// Package detect discovers which AI tools are configured in a project from
// filesystem evidence.
package detect

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/agentsync/agentsync/internal/registry"
)

// StatusActive is the only status a detected tool currently carries.
const StatusActive = "active"

// ArtifactInfo describes an artifact of a detected tool that exists on disk.
type ArtifactInfo struct {
	Path    string          `json:"path"`
	Format  registry.Format `json:"format"`
	ModTime time.Time       `json:"mod_time"`
	Size    int64           `json:"size"`
	IsDir   bool            `json:"is_dir,omitempty"`
}

// DetectedTool is the detection outcome for one tool in one project.
// It is derived from the filesystem on every pass and never stored.
type DetectedTool struct {
	Tool       registry.ToolID `json:"tool"`
	Name       string          `json:"name"`
	Confidence float64         `json:"confidence"`
	// Evidence lists the candidate paths that were found.
	Evidence   []string       `json:"evidence"`
	Artifacts  []ArtifactInfo `json:"artifacts,omitempty"`
	DetectedAt time.Time      `json:"detected_at"`
	Status     string         `json:"status"`
}

// StatFunc matches os.Stat; injectable for tests.
type StatFunc func(name string) (os.FileInfo, error)

// Detector scans a project root against a registry.
type Detector struct {
	registry *registry.Registry
	logger   *zap.Logger
	stat     StatFunc
	now      func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithStat replaces the stat function used to probe candidates.
func WithStat(stat StatFunc) Option {
	return func(d *Detector) { d.stat = stat }
}

// WithClock replaces the clock used for detection timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// New creates a Detector over reg. A nil logger disables logging.
func New(reg *registry.Registry, logger *zap.Logger, opts ...Option) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{
		registry: reg,
		logger:   logger,
		stat:     os.Stat,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the tools with at least one piece of evidence under
// projectRoot, sorted by descending confidence. Ties keep registry order.
//
// Stat failures on individual candidates count as absence; Detect never fails.
func (d *Detector) Detect(projectRoot string) []DetectedTool {
	now := d.now()
	var found []DetectedTool

	for _, desc := range d.registry.All() {
		var evidence []string
		for _, f := range desc.Files {
			if d.exists(projectRoot, f, false) {
				evidence = append(evidence, f)
			}
		}
		for _, dir := range desc.Dirs {
			if d.exists(projectRoot, dir, true) {
				evidence = append(evidence, dir)
			}
		}
		if len(evidence) == 0 {
			continue
		}

		found = append(found, DetectedTool{
			Tool:       desc.ID,
			Name:       desc.DisplayName,
			Confidence: Confidence(len(evidence), desc.CandidateCount()),
			Evidence:   evidence,
			Artifacts:  d.existingArtifacts(projectRoot, desc),
			DetectedAt: now,
			Status:     StatusActive,
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Confidence > found[j].Confidence
	})
	return found
}

// Confidence is existing / max(1, declared), clamped to [0,1].
func Confidence(existing, declared int) float64 {
	if declared < 1 {
		declared = 1
	}
	c := float64(existing) / float64(declared)
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

func (d *Detector) exists(root, rel string, wantDir bool) bool {
	info, err := d.stat(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Debug("candidate stat failed, treating as absent",
				zap.String("path", rel), zap.Error(err))
		}
		return false
	}
	return info.IsDir() == wantDir
}

func (d *Detector) existingArtifacts(root string, desc registry.ToolDescriptor) []ArtifactInfo {
	var out []ArtifactInfo
	for _, a := range desc.Artifacts {
		info, err := d.stat(filepath.Join(root, filepath.FromSlash(a.Path)))
		if err != nil || info.IsDir() != a.Format.IsDir() {
			continue
		}
		out = append(out, ArtifactInfo{
			Path:    a.Path,
			Format:  a.Format,
			ModTime: info.ModTime(),
			Size:    info.Size(),
			IsDir:   info.IsDir(),
		})
	}
	return out
}

// Find returns the detected entry for id, if present.
func Find(tools []DetectedTool, id registry.ToolID) (DetectedTool, bool) {
	for _, t := range tools {
		if t.Tool == id {
			return t, true
		}
	}
	return DetectedTool{}, false
}
