package devices

import (
	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/service"
)

// HeaterSwitch is one mode (or the power) of a Heatzy heater, as a switch
type HeaterSwitch struct {
	*accessory.Accessory
	Switch *HeaterSwitchSvc
}

func NewHeaterSwitch(info accessory.Info, label string) *HeaterSwitch {
	acc := HeaterSwitch{}
	acc.Accessory = accessory.New(info, accessory.TypeSwitch)

	acc.Switch = NewHeaterSwitchSvc(label)
	acc.AddService(acc.Switch.Service)
	return &acc
}

type HeaterSwitchSvc struct {
	*service.Service

	On   *characteristic.On
	Name *characteristic.Name
}

func NewHeaterSwitchSvc(label string) *HeaterSwitchSvc {
	svc := HeaterSwitchSvc{}
	svc.Service = service.New(service.TypeSwitch)

	svc.On = characteristic.NewOn()
	svc.AddCharacteristic(svc.On.Characteristic)

	svc.Name = characteristic.NewName()
	svc.Name.SetValue(label)
	svc.AddCharacteristic(svc.Name.Characteristic)

	return &svc
}
