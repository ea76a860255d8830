// Package identity manages the controller's persisted identity: a UUID
// assigned on first boot and a boot counter. Both live in the settings
// store; neither is precious. A device that loses its id simply mints a
// new one.
package identity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lumen/internal/logging"
	"lumen/internal/record"
	"lumen/internal/store"
)

const (
	Namespace      = "device"
	CurrentVersion = 1

	idKey   = "id"
	bootKey = "boots"
)

var logger = logging.For("identity")

// Device is the controller identity for this boot.
type Device struct {
	ID    uuid.UUID
	Boots uint32
}

// Load reads the device identity, minting and persisting a fresh UUID if
// none exists or the stored record is unusable. The boot counter is
// incremented through the scalar path; counter failures are tolerated
// silently since an inexact boot count costs nothing.
func Load(st store.Store) (*Device, error) {
	if !st.Ready() {
		return nil, store.ErrNotInitialized
	}

	id, err := loadID(st)
	if err != nil {
		return nil, err
	}

	boots := st.LoadUint32(Namespace, bootKey, 0) + 1
	if err := st.SaveUint32(Namespace, bootKey, boots); err != nil {
		logger.Warn("boot counter not persisted", "err", err)
	}

	return &Device{ID: id, Boots: boots}, nil
}

func loadID(st store.Store) (uuid.UUID, error) {
	raw, err := st.LoadBlob(Namespace, idKey, record.Size(16))
	switch {
	case err == nil:
		version, payload, openErr := record.Open(raw)
		if openErr == nil && version == CurrentVersion {
			if id, parseErr := uuid.FromBytes(payload); parseErr == nil {
				return id, nil
			}
		}
		logger.Warn("stored device id unusable, minting a new one", "err", openErr)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrSizeMismatch):
		// First boot, or an id written by an incompatible format.
	default:
		return uuid.Nil, fmt.Errorf("loading device id: %w", err)
	}

	id := uuid.New()
	if err := st.SaveBlob(Namespace, idKey, record.Seal(CurrentVersion, id[:])); err != nil {
		return uuid.Nil, fmt.Errorf("persisting device id: %w", err)
	}
	logger.Info("minted device id", "id", id.String())
	return id, nil
}
