package wallets

import "errors"

func errorsIsOrNil(err, want error) bool {
	if want == nil {
		return err == nil
	}

	return errors.Is(err, want)
}
