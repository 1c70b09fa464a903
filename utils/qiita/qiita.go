// Package qiita builds Qiita public-download links and fetches them.
package qiita

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// BaseURL is the public Qiita deployment
const BaseURL = "https://qiita.ucsd.edu"

// DataKind selects what the public download endpoint returns
type DataKind string

const (
	Raw             DataKind = "raw"
	BIOM            DataKind = "biom"
	SampleInfo      DataKind = "sample_information"
	PrepInfo        DataKind = "prep_information"
	defaultDataKind          = BIOM
)

// Kinds lists the accepted data kinds
var Kinds = []DataKind{Raw, BIOM, SampleInfo, PrepInfo}

// ErrInvalidRequest is wrapped by every request validation failure
var ErrInvalidRequest = errors.New("invalid qiita request")

// ParseKind converts a name to a DataKind
func ParseKind(s string) (DataKind, error) {
	for _, k := range Kinds {
		if string(k) == strings.ToLower(strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown data kind %q (expected raw, biom, sample_information or prep_information)", ErrInvalidRequest, s)
}

// Request describes one public download
type Request struct {
	StudyID  int
	Data     DataKind
	DataType string // e.g. 16S or Metagenomic; raw and biom only
	PrepID   int    // prep_information only
}

// Validate checks the combination of fields
func (r Request) Validate() error {
	switch r.Data {
	case Raw, BIOM, SampleInfo:
		if r.StudyID <= 0 {
			return fmt.Errorf("%w: study id must be positive", ErrInvalidRequest)
		}
	case PrepInfo:
		if r.PrepID <= 0 {
			return fmt.Errorf("%w: prep_information requires a prep id", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown data kind %q", ErrInvalidRequest, r.Data)
	}
	if r.DataType != "" && r.Data != Raw && r.Data != BIOM {
		return fmt.Errorf("%w: data type only applies to raw and biom downloads", ErrInvalidRequest)
	}
	return nil
}

// DownloadURL returns the public download link on the public deployment
func DownloadURL(r Request) (string, error) {
	return downloadURL(BaseURL, r)
}

func downloadURL(base string, r Request) (string, error) {
	if r.Data == "" {
		r.Data = defaultDataKind
	}
	if err := r.Validate(); err != nil {
		return "", err
	}

	// fixed parameter order, matching the links Qiita documents
	params := []string{"data=" + url.QueryEscape(string(r.Data))}
	if r.Data == PrepInfo {
		params = append(params, "prep_id="+strconv.Itoa(r.PrepID))
	} else {
		params = append(params, "study_id="+strconv.Itoa(r.StudyID))
	}
	if r.DataType != "" {
		params = append(params, "data_type="+url.QueryEscape(r.DataType))
	}
	return strings.TrimRight(base, "/") + "/public_download/?" + strings.Join(params, "&"), nil
}

// StudyURL returns the study description page
func StudyURL(studyID string) string {
	return BaseURL + "/study/description/" + studyID
}
