package protocol

// ServiceInfo describes a created service: its interface version, the
// optional type id of its schema and whether subscribing to all events
// at once is supported.
type ServiceInfo struct {
	Version            uint32
	TypeID             *TypeID
	SubscribeAllEvents *bool
}

const (
	serviceInfoFieldVersion            = 0
	serviceInfoFieldTypeID             = 1
	serviceInfoFieldSubscribeAllEvents = 2
)

// AllEventsSupported reports whether SubscribeAllEvents may be used on
// the service. Absent means supported.
func (i ServiceInfo) AllEventsSupported() bool {
	return i.SubscribeAllEvents == nil || *i.SubscribeAllEvents
}

// Serialize encodes the info as a struct value. Optional fields are
// only present when set, wrapped in Some.
func (i ServiceInfo) Serialize() (SerializedValue, error) {
	st := Struct{Fields: []StructField{
		{ID: serviceInfoFieldVersion, Value: U32(i.Version)},
	}}
	if i.TypeID != nil {
		st.Fields = append(st.Fields, StructField{
			ID:    serviceInfoFieldTypeID,
			Value: Some{Value: UUID(*i.TypeID)},
		})
	}
	if i.SubscribeAllEvents != nil {
		st.Fields = append(st.Fields, StructField{
			ID:    serviceInfoFieldSubscribeAllEvents,
			Value: Some{Value: Bool(*i.SubscribeAllEvents)},
		})
	}
	return SerializeValue(st)
}

// DeserializeServiceInfo decodes a ServiceInfo struct value, ignoring
// unknown fields.
func DeserializeServiceInfo(v SerializedValueSlice) (ServiceInfo, error) {
	d := NewDeserializer(v)
	sd, err := d.Struct()
	if err != nil {
		return ServiceInfo{}, err
	}

	var info ServiceInfo
	versionSeen := false

	for sd.HasMoreFields() {
		f, err := sd.Field()
		if err != nil {
			return ServiceInfo{}, err
		}

		switch f.ID {
		case serviceInfoFieldVersion:
			if info.Version, err = f.U32(); err == nil {
				versionSeen = true
			}

		case serviceInfoFieldTypeID:
			var inner *Deserializer
			if inner, err = f.Some(); err == nil && inner != nil {
				var t TypeID
				if u, uerr := inner.UUID(); uerr != nil {
					err = uerr
				} else {
					t = TypeID(u)
					info.TypeID = &t
				}
			}

		case serviceInfoFieldSubscribeAllEvents:
			var inner *Deserializer
			if inner, err = f.Some(); err == nil && inner != nil {
				var b bool
				if b, err = inner.Bool(); err == nil {
					info.SubscribeAllEvents = &b
				}
			}

		default:
			err = f.Skip()
		}

		if err != nil {
			return ServiceInfo{}, err
		}
	}

	if err := sd.Finish(); err != nil {
		return ServiceInfo{}, err
	}
	if !versionSeen {
		return ServiceInfo{}, ErrInvalidSerialization
	}
	return info, nil
}
