package distribute

import (
	"github.com/tiemma/sonic-distribute/internal/coordinator"
	"github.com/tiemma/sonic-distribute/internal/node"
	"github.com/tiemma/sonic-distribute/internal/transport"
)

// IsCoordinator は現在のプロセスがコーディネーターかどうかを返す
func IsCoordinator() bool {
	_, ok := transport.WorkerIDFromEnv()
	return !ok
}

// WorkerID はワーカーIDを返す（コーディネーターでは 0）
func WorkerID() int {
	id, _ := transport.WorkerIDFromEnv()
	return id
}

// WorkerName はログ用のロール名を返す（"MASTER" または "WORKER-n"）
func WorkerName() string {
	id, ok := transport.WorkerIDFromEnv()
	if !ok {
		return coordinator.Label
	}
	return node.Name(id)
}

// WorkerParams はコーディネーターから渡された引数を返す
// コーディネーターや引数が無い場合は nil
func WorkerParams() map[string]string {
	params, err := transport.ParamsFromEnv()
	if err != nil {
		return nil
	}
	return params
}
