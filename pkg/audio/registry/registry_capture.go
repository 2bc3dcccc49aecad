package registry

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/xaionaro-go/speechstream/pkg/audio/types"
)

type CaptureDeviceFactory interface {
	NewCaptureDeviceOpener() (types.CaptureDeviceOpener, error)
}

type captureFactoryWithPriority struct {
	Priority int
	CaptureDeviceFactory
}

var captureFactoryRegistry = map[reflect.Type]captureFactoryWithPriority{}

func RegisterCaptureFactory(
	priority int,
	factory CaptureDeviceFactory,
) {
	t := reflect.ValueOf(factory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if _, ok := captureFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of CaptureDeviceOpener of type %v", t))
	}
	captureFactoryRegistry[t] = captureFactoryWithPriority{
		Priority:             priority,
		CaptureDeviceFactory: factory,
	}
}

// CaptureFactories returns the registered factories, the highest priority first.
func CaptureFactories() []CaptureDeviceFactory {
	var factoriesWithPriorities []captureFactoryWithPriority
	for _, factory := range captureFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	sort.SliceStable(factoriesWithPriorities, func(i, j int) bool {
		return factoriesWithPriorities[i].Priority > factoriesWithPriorities[j].Priority
	})

	factories := make([]CaptureDeviceFactory, 0, len(factoriesWithPriorities))
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.CaptureDeviceFactory)
	}

	return factories
}
