package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"golang.org/x/exp/slices"

	"github.com/commonedit/liveview/liveview"
	"github.com/commonedit/liveview/relay"
)

const DefaultApiUrl = "https://api.commonedit.com"
const DefaultRelayUrl = "wss://relay.commonedit.com"

const LocalVersion = "0.0.0-local"

func main() {
	usage := fmt.Sprintf(
		`Live view watcher.

Watches shared files and keeps their live sessions reconciled, the same way
an editor host would. Each <file> is a path inside a shared folder, e.g.
notes/todo.md.

The default urls are:
    api_url: %s
    url: %s

Usage:
    liveviewctl watch [--config=<config>] [--url=<url>] [--api_url=<api_url>]
        --user_auth=<user_auth> [--password=<password>] <file>...

Options:
    -h --help                Show this screen.
    --version                Show version.
    --config=<config>        Yaml config file.
    --url=<url>              Relay websocket url.
    --api_url=<api_url>      Relay control plane url.
    --user_auth=<user_auth>
    --password=<password>`,
		DefaultApiUrl,
		DefaultRelayUrl,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], RequireVersion())
	if err != nil {
		panic(err)
	}

	if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	}
}

func watch(opts docopt.Opts) {
	config := DefaultConfig()
	if configPathAny := opts["--config"]; configPathAny != nil {
		var err error
		config, err = LoadConfig(configPathAny.(string))
		if err != nil {
			panic(err)
		}
	}
	if urlAny := opts["--url"]; urlAny != nil {
		config.Url = urlAny.(string)
	}
	if apiUrlAny := opts["--api_url"]; apiUrlAny != nil {
		config.ApiUrl = apiUrlAny.(string)
	}

	files := opts["<file>"].([]string)

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
		<-signals
		cancel()
	}()

	byJwt, userName := watchAuth(cancelCtx, config.ApiUrl, opts)

	providerToken, err := liveview.ParseProviderTokenUnverified(byJwt)
	if err != nil {
		panic(err)
	}
	fmt.Printf("user_id: %s\n", providerToken.UserId)

	client := relay.NewClientWithDefaults(cancelCtx, config.Url, &relay.ClientAuth{
		ByJwt: byJwt,
	})
	defer client.Close()

	for _, folderPath := range watchFolders(config, files) {
		folder := client.AddFolder(folderPath)
		folder.Connect()
	}

	editor := newWatchEditor(files)
	ui := newConsoleUi()
	auth := newJwtAuth(userName)
	network, err := newProbeNetwork(cancelCtx, config.Url)
	if err != nil {
		panic(err)
	}

	manager := liveview.NewLiveViewManagerWithDefaults(
		cancelCtx,
		editor,
		client,
		auth,
		network,
		ui,
	)
	defer manager.Destroy()

	removeOnlineChangeCallback := network.AddOnlineChangeCallback(func(online bool) {
		if online {
			manager.GoOnline()
			manager.RequestRefresh("network online")
		} else {
			manager.GoOffline()
		}
	})
	defer removeOnlineChangeCallback()

	manager.RequestRefresh("startup")

	fmt.Printf("Watching %d files %s\n", len(files), RequireVersion())

	select {
	case <-cancelCtx.Done():
	}
}

// the shared folders to register: the configured folders plus the top level
// directory of each watched file
func watchFolders(config *Config, files []string) []string {
	folderPaths := slices.Clone(config.Folders)
	for _, file := range files {
		if folderPath, _, ok := strings.Cut(file, "/"); ok && folderPath != "" {
			if !slices.Contains(folderPaths, folderPath) {
				folderPaths = append(folderPaths, folderPath)
			}
		}
	}
	return folderPaths
}

func watchAuth(ctx context.Context, apiUrl string, opts docopt.Opts) (byJwt string, userName string) {
	userAuth := opts["--user_auth"].(string)

	var password string
	if passwordAny := opts["--password"]; passwordAny != nil {
		password = passwordAny.(string)
	} else {
		fmt.Print("Enter password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			panic(err)
		}
		password = string(passwordBytes)
		fmt.Printf("\n")
	}

	api := relay.NewRelayApiWithContext(ctx, apiUrl)

	loginCallback, loginChannel := relay.NewBlockingApiCallback[*relay.AuthLoginWithPasswordResult]()

	loginArgs := &relay.AuthLoginWithPasswordArgs{
		UserAuth: userAuth,
		Password: password,
	}

	api.AuthLoginWithPassword(loginArgs, loginCallback)

	var loginResult relay.ApiCallbackResult[*relay.AuthLoginWithPasswordResult]
	select {
	case <-ctx.Done():
		os.Exit(0)
	case loginResult = <-loginChannel:
	}

	if loginResult.Error != nil {
		panic(loginResult.Error)
	}
	if loginResult.Result.Error != nil {
		panic(fmt.Errorf("%s", loginResult.Result.Error.Message))
	}
	if loginResult.Result.User == nil {
		panic(fmt.Errorf("login did not return a user"))
	}

	api.SetByJwt(loginResult.Result.User.ByJwt)

	return loginResult.Result.User.ByJwt, loginResult.Result.User.UserName
}

func RequireVersion() string {
	if version := os.Getenv("LIVEVIEW_VERSION"); version != "" {
		return version
	}
	return LocalVersion
}
