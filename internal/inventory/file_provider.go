package inventory

import (
	"context"
	"fmt"
	"os"

	api "github.com/retirectl/retirectl/api/v1alpha1"
	"github.com/retirectl/retirectl/internal/rterrors"
	"sigs.k8s.io/yaml"
)

// fileSnapshot is the on-disk shape of an inventory export: the device
// population plus the group-id to group-name map needed for cohort
// resolution.
type fileSnapshot struct {
	Devices []api.DeviceRecord `json:"devices"`
	Groups  map[string]string  `json:"groups,omitempty"`
}

// FileProvider serves device records and group names from an inventory export
// file (YAML or JSON). It lets a retirement run operate on a reviewed
// snapshot without a live management-system session.
type FileProvider struct {
	snapshot fileSnapshot
}

var (
	_ Provider    = (*FileProvider)(nil)
	_ GroupLookup = (*FileProvider)(nil)
)

func NewFileProvider(path string) (*FileProvider, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory file: %v", err)
	}
	p := &FileProvider{}
	if err := yaml.Unmarshal(contents, &p.snapshot); err != nil {
		return nil, fmt.Errorf("decoding inventory file: %v", err)
	}
	return p, nil
}

func (p *FileProvider) ListDevices(ctx context.Context) ([]api.DeviceRecord, error) {
	devices := make([]api.DeviceRecord, len(p.snapshot.Devices))
	copy(devices, p.snapshot.Devices)
	return devices, nil
}

func (p *FileProvider) GroupName(ctx context.Context, groupID string) (string, error) {
	name, ok := p.snapshot.Groups[groupID]
	if !ok {
		return "", fmt.Errorf("group %q: %w", groupID, rterrors.ErrNotFound)
	}
	return name, nil
}
