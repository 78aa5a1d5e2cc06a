package histreg

import "fmt"

func errUnknownGenMethod(method string) error {
	return fmt.Errorf("histreg: unknown HISTOGRAM_BUCKET_GEN_METHOD %q", method)
}
