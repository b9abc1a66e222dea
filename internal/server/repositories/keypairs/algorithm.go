package keypairs

import "github.com/dmitrijs2005/offpay/internal/cryptox"

func cryptoAlgorithm(s string) cryptox.Algorithm {
	if alg, err := cryptox.ParseAlgorithm(s); err == nil {
		return alg
	}
	return cryptox.Algorithm(s)
}
