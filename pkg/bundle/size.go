package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// FileSize holds the measured sizes of a single output in bytes
type FileSize struct {
	Target string `json:"target"`
	File   string `json:"file"`
	Raw    int    `json:"raw"`
	Gzip   int    `json:"gzip"`
	Brotli int    `json:"brotli"`
}

// MeasureSizes reads every size-test output of a plan and records its compressed sizes
func MeasureSizes(plan *Plan) ([]FileSize, error) {
	cfg := Config{Root: plan.Root}
	result := make([]FileSize, 0)

	for _, target := range plan.Targets {
		if !strings.HasPrefix(target.Name, SizeTargetPrefix) {
			continue
		}

		for _, out := range target.Outputs {
			content, err := ioutil.ReadFile(cfg.Path(out.File))
			if err != nil {
				return nil, eris.Wrapf(err, "failed to read %s", out.File)
			}

			size, err := measure(content)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to measure %s", out.File)
			}
			size.Target = target.Name
			size.File = out.File
			result = append(result, size)
		}
	}

	return result, nil
}

func measure(content []byte) (FileSize, error) {
	size := FileSize{Raw: len(content)}

	var buffer bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buffer, gzip.BestCompression)
	if err != nil {
		return size, err
	}
	if _, err = gz.Write(content); err != nil {
		return size, err
	}
	if err = gz.Close(); err != nil {
		return size, err
	}
	size.Gzip = buffer.Len()

	buffer.Reset()
	br := brotli.NewWriterLevel(&buffer, brotli.BestCompression)
	if _, err = br.Write(content); err != nil {
		return size, err
	}
	if err = br.Close(); err != nil {
		return size, err
	}
	size.Brotli = buffer.Len()

	return size, nil
}

// PrintSizes renders the report as a colored table
func PrintSizes(w io.Writer, sizes []FileSize) error {
	if len(sizes) == 0 {
		_, err := colorstring.Fprintln(w, "[yellow]no size tests found[reset]")
		return err
	}

	nameLen := len("file")
	for _, size := range sizes {
		if len(size.File) > nameLen {
			nameLen = len(size.File)
		}
	}

	nameFmt := fmt.Sprintf("%%-%ds", nameLen)
	_, err := colorstring.Fprintf(w, "[bold]"+nameFmt+" %10s %10s %10s[reset]\n", "file", "raw", "gzip", "brotli")
	if err != nil {
		return err
	}

	for _, size := range sizes {
		_, err = colorstring.Fprintf(w, nameFmt+" %10s [green]%10s[reset] [blue]%10s[reset]\n", size.File,
			formatBytes(size.Raw), formatBytes(size.Gzip), formatBytes(size.Brotli))
		if err != nil {
			return err
		}
	}
	return nil
}

func formatBytes(n int) string {
	return fmt.Sprintf("%d B", n)
}

// WriteSizes stores the report as JSON
func WriteSizes(path string, sizes []FileSize) error {
	data, err := json.MarshalIndent(sizes, "", "  ")
	if err != nil {
		return eris.Wrap(err, "failed to encode size report")
	}

	return writeFile(path, data)
}
