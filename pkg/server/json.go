package server

import (
	"reflect"

	"github.com/bytedance/sonic"

	"github.com/pH0enix46/EMR/pkg/policy"
	"github.com/pH0enix46/EMR/pkg/version"
)

var jsonHandler = sonic.Config{
	UseNumber:  true,
	EscapeHTML: true,
}.Froze()

func init() {
	// Pretouch the types served by the admin API
	sonic.Pretouch(reflect.TypeOf(policy.Table{}))
	sonic.Pretouch(reflect.TypeOf(version.Info{}))
}

func fastJSONMarshal(v interface{}) []byte {
	data, _ := jsonHandler.Marshal(v)
	return data
}
