package providers

import (
	"time"

	"github.com/samber/do/v2"

	"github.com/mapflag/mapflag-client/internal/auth"
	"github.com/mapflag/mapflag-client/internal/clock"
	"github.com/mapflag/mapflag-client/internal/config"
	"github.com/mapflag/mapflag-client/internal/logger"
)

// localTokenTTL is the lifetime of tokens minted by the local provider.
const localTokenTTL = time.Hour

// ProvideAuthProviders provides the identity providers selected by AUTH_PROVIDER.
func ProvideAuthProviders(i do.Injector) (auth.Providers, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	clk := do.MustInvoke[clock.Clock](i)

	if cfg.Firebase.Provider == config.AuthProviderLocal {
		key, err := auth.LoadOrGenerateKey(cfg.Data.BasePath)
		if err != nil {
			return nil, err
		}
		tokens, err := auth.NewTokenService(key, localTokenTTL, clk)
		if err != nil {
			return nil, err
		}

		identity := auth.LocalIdentity{
			UID:   cfg.Firebase.LocalUID,
			Name:  cfg.Firebase.LocalName,
			Email: cfg.Firebase.LocalEmail,
		}
		log.Info("Local identity provider ready", "uid", identity.UID, "token_ttl", localTokenTTL)
		return auth.NewProviders(auth.NewLocalProvider(tokens, identity)), nil
	}

	storeHandle := do.MustInvoke[*StoreHandle](i)

	opts := auth.FirebaseOptions{
		APIKey: cfg.Firebase.APIKey,
		Store:  storeHandle.Store,
		Clock:  clk,
		Logger: log.Component("firebase"),
	}
	if cfg.Firebase.LocalServer {
		opts.EmulatorHost = cfg.Firebase.EmulatorURL
	}

	log.Info("Firebase identity providers ready", "emulator", cfg.Firebase.LocalServer)
	return auth.NewProviders(
		auth.NewGoogleProvider(opts, auth.StaticCredential("id_token", cfg.Firebase.GoogleIDToken)),
		auth.NewFacebookProvider(opts, auth.StaticCredential("access_token", cfg.Firebase.FacebookAccessToken)),
	), nil
}
