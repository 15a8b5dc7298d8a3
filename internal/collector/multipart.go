package collector

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"path"
	"strconv"
	"strings"

	"example.com/fieldpresence/internal/domain"
)

const (
	punchPath      = "/tracking/punch/"
	storeVisitPath = "/tracking/store-visit/"
)

func encodePunch(bundle domain.PunchBundle) (string, io.Reader, string, error) {
	if err := bundle.Validate(); err != nil {
		return "", nil, "", err
	}

	route, prefix := punchPath, "photo"
	if bundle.Kind == domain.PunchStoreVisit {
		route, prefix = storeVisitPath, "visit_photo"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if bundle.Kind == domain.PunchStoreVisit {
		if err := w.WriteField("store", bundle.Target.ID); err != nil {
			return "", nil, "", err
		}
	}
	if err := w.WriteField("latitude", formatCoord(bundle.Location.Latitude)); err != nil {
		return "", nil, "", err
	}
	if err := w.WriteField("longitude", formatCoord(bundle.Location.Longitude)); err != nil {
		return "", nil, "", err
	}

	ext := photoExtension(bundle.Photo)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename="%s.%s"`, prefix, ext))
	header.Set("Content-Type", "image/"+ext)
	part, err := w.CreatePart(header)
	if err != nil {
		return "", nil, "", err
	}
	if _, err := part.Write(bundle.Photo.Data); err != nil {
		return "", nil, "", err
	}
	if err := w.Close(); err != nil {
		return "", nil, "", err
	}
	return route, &buf, w.FormDataContentType(), nil
}

func photoExtension(photo *domain.Photo) string {
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(photo.Name)), "."); ext != "" {
		return ext
	}
	if sub, ok := strings.CutPrefix(strings.ToLower(photo.ContentType), "image/"); ok && sub != "" {
		return sub
	}
	return "jpg"
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
