package crml_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCrml(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Crml Suite")
}
