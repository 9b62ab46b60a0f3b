package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/steambridge/steambridge/pkg/errors"
)

// MarkerFileName is the file the Steam client reads to associate an
// unlaunched process with an application. It is written at init time and
// never read back by this layer.
const MarkerFileName = "steam_appid.txt"

// Environment variables forming the SDK's alternate app-id discovery path.
const (
	EnvAppID  = "SteamAppId"
	EnvGameID = "SteamGameId"
)

// WriteMarker writes steam_appid.txt containing the application id into dir
// (the working directory when dir is empty). The file is a contract with the
// native SDK's own discovery mechanism.
func WriteMarker(dir string, appID uint32) (string, error) {
	if err := requireID(appID); err != nil {
		return "", err
	}

	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.NewError(errors.ErrCodeMarkerWrite, "cannot determine working directory").
				WithComponent("platform").
				WithCause(err)
		}
		dir = wd
	}

	path := filepath.Join(dir, MarkerFileName)
	if err := os.WriteFile(path, []byte(formatID(appID)+"\n"), 0644); err != nil {
		return "", errors.NewError(errors.ErrCodeMarkerWrite,
			fmt.Sprintf("cannot write %s", path)).
			WithComponent("platform").
			WithCause(err)
	}
	return path, nil
}

// SetEnvironment exports the app id through the environment, the SDK's
// alternate discovery path.
func SetEnvironment(appID uint32) error {
	if err := requireID(appID); err != nil {
		return err
	}

	id := formatID(appID)
	if err := os.Setenv(EnvAppID, id); err != nil {
		return err
	}
	return os.Setenv(EnvGameID, id)
}

// DiscoverAppID looks for an application id in the environment, loading a
// .env file first when one is present. Returns 0 when nothing is configured.
func DiscoverAppID() uint32 {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	for _, key := range []string{EnvAppID, EnvGameID} {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			continue
		}
		return uint32(id)
	}
	return 0
}
