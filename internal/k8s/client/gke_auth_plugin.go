package client

import (
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/k8s/kerrors"
	"os"
	"os/exec"
	"path/filepath"

	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

const gkeAuthPlugin = "gke-gcloud-auth-plugin"

// ValidateAuthPlugin checks that the exec credential plugin of authInfo can be found, either in PATH or in
// pluginDir. When found only in pluginDir, that directory is prepended to PATH so the plugin's own subprocesses
// resolve too. Auth infos without an exec plugin pass.
func ValidateAuthPlugin(authInfo *clientcmdapi.AuthInfo, contextName, pluginDir string) error {
	if authInfo == nil || authInfo.Exec == nil || authInfo.Exec.Command == "" {
		return nil
	}
	command := authInfo.Exec.Command

	pluginPath, err := exec.LookPath(command)
	if err == nil {
		dev.Debug(fmt.Sprintf("%s found in PATH at %s for context %s", command, pluginPath, contextName))
		return nil
	}

	if pluginDir != "" {
		customPath := filepath.Join(pluginDir, filepath.Base(command))
		if _, statErr := os.Stat(customPath); statErr == nil {
			dev.Debug(fmt.Sprintf("%s found at custom path: %s", command, customPath))
			newPath := fmt.Sprintf("%s%c%s", pluginDir, os.PathListSeparator, os.Getenv("PATH"))
			if err := os.Setenv("PATH", newPath); err != nil {
				return fmt.Errorf("failed to update PATH environment variable: %w", err)
			}
			return nil
		}
		return kerrors.Wrap(kerrors.CodeInvalidRequest, fmt.Sprintf(
			"%s not found in system PATH or at --gke-auth-plugin location: %s\n%s",
			command, customPath, authInfo.Exec.InstallHint,
		), err)
	}

	msg := fmt.Sprintf("%s not found in system PATH for context %s.", command, contextName)
	if command == gkeAuthPlugin {
		msg += fmt.Sprintf("\nYou can either:\n"+
			"  - %s and ensure 'google-cloud-sdk/bin' is in your system's PATH.\n"+
			"  - Or provide the plugin directory via the --gke-auth-plugin flag to override the default lookup.",
			authInfo.Exec.InstallHint)
	} else if authInfo.Exec.InstallHint != "" {
		msg += "\n" + authInfo.Exec.InstallHint
	}
	return kerrors.Wrap(kerrors.CodeInvalidRequest, msg, err)
}
