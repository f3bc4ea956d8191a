package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abdhe/chat-router/pkg/router"
)

var modelsCmd = &cobra.Command{
	Use:   "models [model-id...]",
	Short: "List auto strategies, or show how model ids are routed",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadServices("text")
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()

		if len(args) > 0 {
			fmt.Fprintln(w, "MODEL\tPROVIDER\tROUTE")
			for _, id := range args {
				route := s.router.Resolve(id)
				fmt.Fprintf(w, "%s\t%s\t%s\n", id, route.Provider(), describeRoute(route))
			}
			return nil
		}

		fmt.Fprintln(w, "ID\tLABEL\tPROVIDER\tMODELS")
		for _, st := range s.router.Strategies() {
			models := strings.Join(st.Models, ", ")
			if models == "" {
				models = "(from profile)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.ID, st.Label, st.Provider, models)
		}
		return nil
	},
}

func describeRoute(route router.Route) string {
	switch rt := route.(type) {
	case router.AutoStrategy:
		return "auto: " + rt.Config.Label
	case router.GoogleModel:
		return "direct, Google key rotation"
	default:
		return "direct"
	}
}
