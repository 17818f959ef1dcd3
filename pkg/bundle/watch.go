package bundle

import (
	"context"
	"net"
	"path/filepath"
	"strconv"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
)

// WatchOptions configure the development loop
type WatchOptions struct {
	// Serve is a host:port address. If set, the directory of the first output is served over HTTP.
	Serve string
}

func (c *Compiler) reportPlugin(ctx context.Context, target *Target, out *Output) api.Plugin {
	return api.Plugin{
		Name: "report",
		Setup: func(build api.PluginBuild) {
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				if len(result.Errors) > 0 {
					log(ctx).Error().
						Str("task", target.Name).
						Msgf("build of %s failed:\n%s", out.File, formatMessages(result.Errors))
				} else {
					log(ctx).Info().Str("task", target.Name).Msgf("rebuilt %s", out.File)
				}
				return api.OnEndResult{}, nil
			})
		},
	}
}

func parseServeAddr(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, eris.Wrapf(err, "invalid address %s", addr)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, eris.Wrapf(err, "invalid port in %s", addr)
	}

	return host, uint16(port), nil
}

// Watch builds the plan's outputs and rebuilds them whenever an input changes. Assets are copied again
// when their source changes. Watch returns once ctx is cancelled.
func Watch(ctx context.Context, plan *Plan, compiler *Compiler, opts WatchOptions) error {
	if plan.Mode != ModeDevelopment {
		return eris.New("watch mode needs a development plan")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	contexts := make([]api.BuildContext, 0)
	defer func() {
		for _, buildCtx := range contexts {
			buildCtx.Dispose()
		}
	}()

	assets := make(map[string][]*Output)
	served := false

	for _, target := range plan.Targets {
		for _, out := range target.Outputs {
			buildOpts, err := compiler.buildOptions(target, out)
			if err != nil {
				return eris.Wrapf(err, "invalid output %s", out.File)
			}
			buildOpts.Write = true
			buildOpts.Plugins = append(buildOpts.Plugins, compiler.reportPlugin(ctx, target, out))

			buildCtx, ctxErr := api.Context(buildOpts)
			if ctxErr != nil {
				return eris.Errorf("failed to set up %s:\n%s", out.File, formatMessages(ctxErr.Errors))
			}
			contexts = append(contexts, buildCtx)

			err = buildCtx.Watch(api.WatchOptions{})
			if err != nil {
				return eris.Wrapf(err, "failed to watch %s", target.Input)
			}

			for _, asset := range out.Assets {
				source, err := filepath.Abs(compiler.Config.Path(asset.Source))
				if err != nil {
					return eris.Wrapf(err, "failed to resolve %s", asset.Source)
				}

				// watch the directory, editors tend to replace files instead of writing to them
				if len(assets[source]) == 0 {
					err = watcher.Add(filepath.Dir(source))
					if err != nil {
						return eris.Wrapf(err, "failed to watch %s", filepath.Dir(source))
					}
				}
				assets[source] = append(assets[source], out)
			}

			if opts.Serve != "" && !served {
				host, port, err := parseServeAddr(opts.Serve)
				if err != nil {
					return err
				}

				result, err := buildCtx.Serve(api.ServeOptions{
					Host:     host,
					Port:     port,
					Servedir: filepath.Dir(buildOpts.Outfile),
				})
				if err != nil {
					return eris.Wrapf(err, "failed to serve %s", opts.Serve)
				}

				log(ctx).Info().Msgf("serving on http://%s:%d/", result.Host, result.Port)
				served = true
			}
		}
	}

	log(ctx).Info().Msg("watching for changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			name, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}

			for _, out := range assets[name] {
				written, err := compiler.copyAssets(out)
				if err != nil {
					log(ctx).Error().Err(err).Msg("failed to copy assets")
					continue
				}

				for _, path := range written {
					log(ctx).Info().Str("path", path).Msgf("copied %s", path)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log(ctx).Error().Err(err).Msg("file watcher failed")
		}
	}
}
