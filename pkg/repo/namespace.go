package repo

import (
	"github.com/foomo/restoreserver/pkg/restore"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Namespace restores of a namespace
type Namespace struct {
	Name string
	// Restores in upstream order
	Restores []*restore.Record
	// Latest restore per snapshot name
	Latest map[string]*restore.Record
}

func buildDirectory(records []*restore.Record) (map[string]*Namespace, error) {
	var (
		err     error
		ids     = make(map[string]struct{}, len(records))
		grouped = map[string][]*restore.Record{}
	)
	for i, record := range records {
		if record == nil {
			continue
		}
		if record.Metadata.Name == "" {
			err = multierr.Append(err, errors.Errorf("restore at index %d in namespace %q has no name", i, record.NamespaceName()))
			continue
		}
		id := record.ID()
		if _, ok := ids[id]; ok {
			err = multierr.Append(err, errors.New("duplicate restore: "+id))
			continue
		}
		ids[id] = struct{}{}
		grouped[record.NamespaceName()] = append(grouped[record.NamespaceName()], record)
	}
	if err != nil {
		return nil, errors.Wrap(err, "invalid restore collection")
	}

	directory := make(map[string]*Namespace, len(grouped))
	for name, restores := range grouped {
		directory[name] = &Namespace{
			Name:     name,
			Restores: restores,
			Latest:   restore.LatestBySnapshot(restores),
		}
	}
	return directory, nil
}
