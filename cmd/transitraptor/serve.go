package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/antigravity/transitraptor/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Boot the HTTP accessibility-analysis surface",
	RunE:  serve,
}

func serve(cmd *cobra.Command, args []string) error {
	store, closer, err := openStore(context.Background(), dsn)
	if err != nil {
		return err
	}
	defer closer.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	router := httpapi.NewRouter(store)
	log.Printf("transitraptor serving on :%s", port)
	return http.ListenAndServe(fmt.Sprintf(":%s", port), router)
}
