package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/go-nbembed/internal/cache"
)

func (a *app) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the conversion cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show the cache location and size",
			Args:  exactArgs(0),
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withCache(func(s *cache.Store) error {
					st, err := s.Stats()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "dir:     %s\nentries: %d\nbytes:   %d\n", st.Dir, st.Entries, st.Bytes)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cache entry",
			Args:  exactArgs(0),
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withCache(func(s *cache.Store) error {
					if err := s.Clear(); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", s.Dir())
					return nil
				})
			},
		},
	)
	return cmd
}

// withCache opens the configured cache for the duration of fn.
func (a *app) withCache(fn func(*cache.Store) error) (err error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	s, err := cache.Open(cfg.CachePath())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
