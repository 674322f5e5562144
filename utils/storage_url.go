package utils

import (
	"net/url"
	"path"
	"strings"
)

// BuildObjectAccessURL renders the public URL of an object. base may hold a
// {objectKey} placeholder or end in a query parameter.
func BuildObjectAccessURL(base, bucket, objectKey string) string {
	base = strings.TrimSpace(base)
	if base != "" {
		if strings.Contains(base, "{objectKey}") {
			escaped := objectKey
			if strings.Contains(base, "?") {
				escaped = url.QueryEscape(objectKey)
			}
			return strings.ReplaceAll(base, "{objectKey}", escaped)
		}
		if strings.Contains(base, "?") {
			return base + url.QueryEscape(objectKey)
		}
		return strings.TrimRight(base, "/") + "/" + objectKey
	}

	if bucket != "" {
		return "https://storage.googleapis.com/" + bucket + "/" + objectKey
	}

	return objectKey
}

// ThumbnailObjectKey places the thumbnail next to the original under thumbnails/.
func ThumbnailObjectKey(originalKey string) string {
	dir := path.Dir(originalKey)
	base := path.Base(originalKey)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext) + ".jpg"
	if dir == "." || dir == "/" {
		return path.Join("thumbnails", name)
	}
	return path.Join(dir, "thumbnails", name)
}
