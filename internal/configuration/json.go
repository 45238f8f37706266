package configuration

// Сериализация с сохранением неизвестных ключей на каждом уровне.
// Каждому типу нужен alias без методов, иначе json уходит в рекурсию.

func (c *ConfigurationV1) UnmarshalJSON(data []byte) error {
	type plain ConfigurationV1
	extra, err := decodeWithExtra(data, (*plain)(c))
	if err != nil {
		return err
	}
	c.Extra = extra
	return nil
}

func (c ConfigurationV1) MarshalJSON() ([]byte, error) {
	type plain ConfigurationV1
	return encodeWithExtra(plain(c), c.Extra)
}

func (c *Command) UnmarshalJSON(data []byte) error {
	type plain Command
	extra, err := decodeWithExtra(data, (*plain)(c))
	if err != nil {
		return err
	}
	c.Extra = extra
	return nil
}

func (c Command) MarshalJSON() ([]byte, error) {
	type plain Command
	return encodeWithExtra(plain(c), c.Extra)
}

func (c *CommandParameters) UnmarshalJSON(data []byte) error {
	type plain CommandParameters
	extra, err := decodeWithExtra(data, (*plain)(c))
	if err != nil {
		return err
	}
	c.Extra = extra
	return nil
}

func (c CommandParameters) MarshalJSON() ([]byte, error) {
	type plain CommandParameters
	return encodeWithExtra(plain(c), c.Extra)
}

func (p *PPLParameter) UnmarshalJSON(data []byte) error {
	type plain PPLParameter
	extra, err := decodeWithExtra(data, (*plain)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

func (p PPLParameter) MarshalJSON() ([]byte, error) {
	type plain PPLParameter
	return encodeWithExtra(plain(p), p.Extra)
}

func (z *Zone) UnmarshalJSON(data []byte) error {
	type plain Zone
	extra, err := decodeWithExtra(data, (*plain)(z))
	if err != nil {
		return err
	}
	z.Extra = extra
	return nil
}

func (z Zone) MarshalJSON() ([]byte, error) {
	type plain Zone
	return encodeWithExtra(plain(z), z.Extra)
}

func (t *Threshold) UnmarshalJSON(data []byte) error {
	type plain Threshold
	extra, err := decodeWithExtra(data, (*plain)(t))
	if err != nil {
		return err
	}
	t.Extra = extra
	return nil
}

func (t Threshold) MarshalJSON() ([]byte, error) {
	type plain Threshold
	return encodeWithExtra(plain(t), t.Extra)
}

func (c *ConfigurationV2) UnmarshalJSON(data []byte) error {
	type plain ConfigurationV2
	extra, err := decodeWithExtra(data, (*plain)(c))
	if err != nil {
		return err
	}
	c.Extra = extra
	return nil
}

func (c ConfigurationV2) MarshalJSON() ([]byte, error) {
	type plain ConfigurationV2
	return encodeWithExtra(plain(c), c.Extra)
}

func (e *EdgeApp) UnmarshalJSON(data []byte) error {
	type plain EdgeApp
	extra, err := decodeWithExtra(data, (*plain)(e))
	if err != nil {
		return err
	}
	e.Extra = extra
	return nil
}

func (e EdgeApp) MarshalJSON() ([]byte, error) {
	type plain EdgeApp
	return encodeWithExtra(plain(e), e.Extra)
}

func (c *CommonSettings) UnmarshalJSON(data []byte) error {
	type plain CommonSettings
	extra, err := decodeWithExtra(data, (*plain)(c))
	if err != nil {
		return err
	}
	c.Extra = extra
	return nil
}

func (c CommonSettings) MarshalJSON() ([]byte, error) {
	type plain CommonSettings
	return encodeWithExtra(plain(c), c.Extra)
}

func (p *PQSettings) UnmarshalJSON(data []byte) error {
	type plain PQSettings
	extra, err := decodeWithExtra(data, (*plain)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

func (p PQSettings) MarshalJSON() ([]byte, error) {
	type plain PQSettings
	return encodeWithExtra(plain(p), p.Extra)
}

func (f *FrameRate) UnmarshalJSON(data []byte) error {
	type plain FrameRate
	extra, err := decodeWithExtra(data, (*plain)(f))
	if err != nil {
		return err
	}
	f.Extra = extra
	return nil
}

func (f FrameRate) MarshalJSON() ([]byte, error) {
	type plain FrameRate
	return encodeWithExtra(plain(f), f.Extra)
}

func (p *PortSettings) UnmarshalJSON(data []byte) error {
	type plain PortSettings
	extra, err := decodeWithExtra(data, (*plain)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

func (p PortSettings) MarshalJSON() ([]byte, error) {
	type plain PortSettings
	return encodeWithExtra(plain(p), p.Extra)
}

func (i *InputTensor) UnmarshalJSON(data []byte) error {
	type plain InputTensor
	extra, err := decodeWithExtra(data, (*plain)(i))
	if err != nil {
		return err
	}
	i.Extra = extra
	return nil
}

func (i InputTensor) MarshalJSON() ([]byte, error) {
	type plain InputTensor
	return encodeWithExtra(plain(i), i.Extra)
}

func (c *CustomSettings) UnmarshalJSON(data []byte) error {
	type plain CustomSettings
	extra, err := decodeWithExtra(data, (*plain)(c))
	if err != nil {
		return err
	}
	c.Extra = extra
	return nil
}

func (c CustomSettings) MarshalJSON() ([]byte, error) {
	type plain CustomSettings
	return encodeWithExtra(plain(c), c.Extra)
}

func (a *AIModels) UnmarshalJSON(data []byte) error {
	type plain AIModels
	extra, err := decodeWithExtra(data, (*plain)(a))
	if err != nil {
		return err
	}
	a.Extra = extra
	return nil
}

func (a AIModels) MarshalJSON() ([]byte, error) {
	type plain AIModels
	return encodeWithExtra(plain(a), a.Extra)
}

func (d *Detection) UnmarshalJSON(data []byte) error {
	type plain Detection
	extra, err := decodeWithExtra(data, (*plain)(d))
	if err != nil {
		return err
	}
	d.Extra = extra
	return nil
}

func (d Detection) MarshalJSON() ([]byte, error) {
	type plain Detection
	return encodeWithExtra(plain(d), d.Extra)
}

func (d *DetectionParameters) UnmarshalJSON(data []byte) error {
	type plain DetectionParameters
	extra, err := decodeWithExtra(data, (*plain)(d))
	if err != nil {
		return err
	}
	d.Extra = extra
	return nil
}

func (d DetectionParameters) MarshalJSON() ([]byte, error) {
	type plain DetectionParameters
	return encodeWithExtra(plain(d), d.Extra)
}

func (a *Area) UnmarshalJSON(data []byte) error {
	type plain Area
	extra, err := decodeWithExtra(data, (*plain)(a))
	if err != nil {
		return err
	}
	a.Extra = extra
	return nil
}

func (a Area) MarshalJSON() ([]byte, error) {
	type plain Area
	return encodeWithExtra(plain(a), a.Extra)
}

func (c *Coordinates) UnmarshalJSON(data []byte) error {
	type plain Coordinates
	extra, err := decodeWithExtra(data, (*plain)(c))
	if err != nil {
		return err
	}
	c.Extra = extra
	return nil
}

func (c Coordinates) MarshalJSON() ([]byte, error) {
	type plain Coordinates
	return encodeWithExtra(plain(c), c.Extra)
}

func (m *MetadataSettings) UnmarshalJSON(data []byte) error {
	type plain MetadataSettings
	extra, err := decodeWithExtra(data, (*plain)(m))
	if err != nil {
		return err
	}
	m.Extra = extra
	return nil
}

func (m MetadataSettings) MarshalJSON() ([]byte, error) {
	type plain MetadataSettings
	return encodeWithExtra(plain(m), m.Extra)
}
