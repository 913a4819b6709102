// Package profiles installs provisioning profiles on the node that runs a build.
package profiles

import (
	"context"
	"path/filepath"

	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/internal/nodefs"
	"github.com/tyemirov/signkit/pkg/logging"
)

const (
	directoryPermissions = 0o755

	logMessageInstallingProfile = "installing provisioning profile"

	logFieldProfile     = "profile"
	logFieldDestination = "destination"
)

// Extensions are the provisioning profile extensions copied from a bundle.
var Extensions = []string{".mobileprovision", ".provisionprofile"}

// RelativeDirectory is the home-relative directory Xcode reads profiles from.
var RelativeDirectory = filepath.Join("Library", "MobileDevice", "Provisioning Profiles")

// FileLister lists the files of an extracted bundle by extension.
type FileLister interface {
	List(extension string) ([]string, error)
}

// Installer copies provisioning profiles into the node's profile directory.
type Installer struct {
	fileSystem     nodefs.FileSystem
	loggingService *logging.Service
}

// NewInstaller constructs an Installer.
func NewInstaller(fileSystem nodefs.FileSystem, loggingService *logging.Service) *Installer {
	return &Installer{fileSystem: fileSystem, loggingService: loggingService}
}

// Install copies every profile of the bundle under its base name, replacing
// files of the same name, and returns the installed paths.
func (installer *Installer) Install(ctx context.Context, bundle FileLister) ([]string, error) {
	if cancelledErr := failure.FromContext(ctx); cancelledErr != nil {
		return nil, cancelledErr
	}
	homeDirectory, homeErr := installer.fileSystem.HomeDirectory(ctx)
	if homeErr != nil {
		return nil, failure.NewResourceError("resolve home directory", "", homeErr)
	}
	destinationDirectory := filepath.Join(homeDirectory, RelativeDirectory)
	if err := installer.fileSystem.EnsureDirectory(destinationDirectory, directoryPermissions); err != nil {
		return nil, failure.NewResourceError("create profile directory", destinationDirectory, err)
	}

	installed := []string{}
	for _, extension := range Extensions {
		profileFiles, listErr := bundle.List(extension)
		if listErr != nil {
			return installed, listErr
		}
		for _, profileFile := range profileFiles {
			if cancelledErr := failure.FromContext(ctx); cancelledErr != nil {
				return installed, cancelledErr
			}
			destination := filepath.Join(destinationDirectory, filepath.Base(profileFile))
			installer.loggingService.Info(logMessageInstallingProfile,
				logging.String(logFieldProfile, filepath.Base(profileFile)),
				logging.String(logFieldDestination, destination),
			)
			if err := installer.fileSystem.CopyFile(profileFile, destination); err != nil {
				return installed, failure.NewResourceError("copy provisioning profile", destination, err)
			}
			installed = append(installed, destination)
		}
	}
	return installed, nil
}
