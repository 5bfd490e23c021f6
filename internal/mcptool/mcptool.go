// Package mcptool exposes the PDF to flipbook conversion as an MCP tool so
// assistants can convert local files without the HTTP service.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"flipbook-app/internal/export"
	"flipbook-app/internal/logging"
	"flipbook-app/internal/pdf"
	"flipbook-app/internal/pipeline"
	"flipbook-app/internal/store"
	"flipbook-app/internal/viewer"
)

const ToolName = "pdf-to-flipbook"

type ConvertQuery struct {
	Path    string `json:"path" jsonschema:"path of the PDF to convert"`
	Title   string `json:"title,omitempty" jsonschema:"title of the flipbook, defaults to the document title"`
	Kind    string `json:"kind,omitempty" jsonschema:"book or story, which only changes the viewer labels"`
	HTMLOut string `json:"html_out,omitempty" jsonschema:"where to write the standalone HTML viewer"`
	PDFOut  string `json:"pdf_out,omitempty" jsonschema:"where to write the recombined PDF"`
}

type ConvertResponse struct {
	Title   string          `json:"title"`
	Report  pipeline.Report `json:"report"`
	Summary string          `json:"summary"`
	HTMLOut string          `json:"html_out,omitempty"`
	PDFOut  string          `json:"pdf_out,omitempty"`
}

func ConvertTool() *mcp.Tool {
	inputSchema, err := jsonschema.For[ConvertQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        ToolName,
		Description: "Convert a PDF of two-page spreads into a flipbook of single leaves and export it as HTML and/or PDF",
		InputSchema: inputSchema,
	}
}

// Converter runs the tool against a pipeline.
type Converter struct {
	pipeline *pipeline.Pipeline
	log      logrus.FieldLogger
}

func NewConverter(p *pipeline.Pipeline, logger logrus.FieldLogger) *Converter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Converter{pipeline: p, log: logger}
}

// Handle converts query.Path and writes the requested exports.
func (c *Converter) Handle(ctx context.Context, req *mcp.CallToolRequest, query ConvertQuery) (*mcp.CallToolResult, *ConvertResponse, error) {
	if strings.TrimSpace(query.Path) == "" {
		return nil, nil, errors.New("path is required")
	}
	if query.HTMLOut == "" && query.PDFOut == "" {
		return nil, nil, errors.New("at least one of html_out or pdf_out is required")
	}
	data, err := os.ReadFile(query.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", query.Path, err)
	}

	leaves, report, err := c.pipeline.Convert(ctx, data)
	if err != nil {
		return nil, nil, err
	}
	if report.Warnings == nil {
		report.Warnings = []pipeline.Warning{}
	}
	title := documentTitle(query.Title, query.Path, data)
	c.log.WithFields(logrus.Fields{"path": query.Path, "leaves": report.LeafCount}).Info("converted for mcp")

	resp := &ConvertResponse{Title: title, Report: report, Summary: report.String()}
	if query.HTMLOut != "" {
		err := writeFile(query.HTMLOut, func(f *os.File) error {
			kind := query.Kind
			if kind == "" {
				kind = store.KindBook
			}
			return export.HTML(f, title, viewer.LabelsFor(kind), leaves)
		})
		if err != nil {
			return nil, nil, err
		}
		resp.HTMLOut = query.HTMLOut
	}
	if query.PDFOut != "" {
		if err := writeFile(query.PDFOut, func(f *os.File) error { return export.PDF(f, title, leaves) }); err != nil {
			return nil, nil, err
		}
		resp.PDFOut = query.PDFOut
	}
	return nil, resp, nil
}

// NewServer returns an MCP server with the conversion tool registered.
func NewServer(c *Converter, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "flipbook", Version: version}, nil)
	mcp.AddTool(server, ConvertTool(), c.Handle)
	return server
}

// Serve runs the server over stdin and stdout until ctx ends or the client
// disconnects.
func Serve(ctx context.Context, c *Converter, version string) error {
	return NewServer(c, version).Run(ctx, &mcp.StdioTransport{})
}

func documentTitle(title, path string, data []byte) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if info, err := pdf.Inspect(data); err == nil && strings.TrimSpace(info.Title) != "" {
		return strings.TrimSpace(info.Title)
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// writeFile writes through a temporary file so a failed export leaves no
// partial output behind.
func writeFile(path string, write func(*os.File) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".flipbook-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
