package providers

import (
	"github.com/samber/do/v2"

	"github.com/tallyapp/tally-server/internal/config"
	"github.com/tallyapp/tally-server/internal/logger"
	"github.com/tallyapp/tally-server/internal/media/images"
)

// ImageStorages groups the image stores for icons and profile photos.
type ImageStorages struct {
	Icons  *images.Storage
	Photos *images.Storage
}

// ProvideImageStorages provides the image storage backends.
func ProvideImageStorages(i do.Injector) (*ImageStorages, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	icons, err := images.NewStorage(cfg.Data.BasePath, "icons")
	if err != nil {
		return nil, err
	}

	photos, err := images.NewStorage(cfg.Data.BasePath, "photos")
	if err != nil {
		return nil, err
	}

	log.Info("Image storage initialized", "base_path", cfg.Data.BasePath)

	return &ImageStorages{
		Icons:  icons,
		Photos: photos,
	}, nil
}
