package upload

import "errors"

// ErrUploadFailed wraps every failure after validation passed.
var ErrUploadFailed = errors.New("upload failed")
