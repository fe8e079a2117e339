package grib

// makeTemperatureMessage builds a single-field GRIB2 message on the same
// 3x3 regular lat/lon grid as makeCompleteGRIB2Message (90N-88N, 0E-2E),
// temperature category 0, at the given isobaric level (hPa, scale factor 0),
// with Section 7 holding the nine raw packed bytes supplied. Used by
// index/dataset/open tests that need several related messages differing
// only in level and values (spec.md §8 scenario 1, "Simple KV").
func makeTemperatureMessage(levelHPa uint32, packed [9]byte) []byte {
	msg := []byte{}

	sec0 := make([]byte, 16)
	copy(sec0[0:4], "GRIB")
	sec0[6] = 0 // Discipline: Meteorological
	sec0[7] = 2 // Edition 2
	msg = append(msg, sec0...)

	sec1 := make([]byte, 21)
	sec1[0], sec1[1], sec1[2], sec1[3] = 0x00, 0x00, 0x00, 0x15
	sec1[4] = 1
	sec1[5], sec1[6] = 0x00, 0x07 // NCEP
	sec1[9] = 2
	sec1[10] = 1
	sec1[11] = 1
	sec1[12], sec1[13] = 0x07, 0xE7 // 2023
	sec1[14] = 1
	sec1[15] = 15
	sec1[16] = 12
	sec1[19] = 0
	sec1[20] = 1
	msg = append(msg, sec1...)

	sec3 := make([]byte, 86)
	sec3[0], sec3[1], sec3[2], sec3[3] = 0x00, 0x00, 0x00, 0x56
	sec3[4] = 3
	sec3[6], sec3[7], sec3[8], sec3[9] = 0x00, 0x00, 0x00, 0x09
	sec3[12], sec3[13] = 0x00, 0x00 // Template 0
	sec3[30], sec3[31], sec3[32], sec3[33] = 0x00, 0x00, 0x00, 0x03 // Ni
	sec3[34], sec3[35], sec3[36], sec3[37] = 0x00, 0x00, 0x00, 0x03 // Nj
	sec3[46], sec3[47], sec3[48], sec3[49] = 0x00, 0x01, 0x5F, 0x90 // La1 90N
	sec3[50], sec3[51], sec3[52], sec3[53] = 0x00, 0x00, 0x00, 0x00 // Lo1 0E
	sec3[55], sec3[56], sec3[57], sec3[58] = 0x00, 0x01, 0x57, 0xC0 // La2 88N
	sec3[59], sec3[60], sec3[61], sec3[62] = 0x00, 0x00, 0x07, 0xD0 // Lo2 2E
	sec3[63], sec3[64], sec3[65], sec3[66] = 0x00, 0x00, 0x03, 0xE8 // Di 1deg
	sec3[67], sec3[68], sec3[69], sec3[70] = 0x00, 0x00, 0x03, 0xE8 // Dj 1deg
	msg = append(msg, sec3...)

	sec4 := make([]byte, 43)
	sec4[0], sec4[1], sec4[2], sec4[3] = 0x00, 0x00, 0x00, 0x2B
	sec4[4] = 4
	sec4[7], sec4[8] = 0x00, 0x00 // Template 0
	sec4[9] = 0                   // Parameter category: Temperature
	sec4[10] = 0                  // Parameter number
	sec4[17] = 1                  // Time range unit: hour
	sec4[18], sec4[19], sec4[20], sec4[21] = 0x00, 0x00, 0x00, 0x00 // Forecast time: 0
	sec4[22] = 100                                                  // Isobaric surface
	sec4[23] = 0                                                    // Scale factor
	sec4[24] = byte(levelHPa >> 24)
	sec4[25] = byte(levelHPa >> 16)
	sec4[26] = byte(levelHPa >> 8)
	sec4[27] = byte(levelHPa)
	sec4[28] = 255 // Second surface: missing
	msg = append(msg, sec4...)

	sec5 := make([]byte, 22)
	sec5[0], sec5[1], sec5[2], sec5[3] = 0x00, 0x00, 0x00, 0x16
	sec5[4] = 5
	sec5[5], sec5[6], sec5[7], sec5[8] = 0x00, 0x00, 0x00, 0x09
	sec5[9], sec5[10] = 0x00, 0x00 // Template 0: simple packing
	refBits := uint32(0x00000000)  // Reference value: 0.0
	sec5[11], sec5[12], sec5[13], sec5[14] = byte(refBits>>24), byte(refBits>>16), byte(refBits>>8), byte(refBits)
	sec5[19] = 8 // Bits per value
	msg = append(msg, sec5...)

	sec6 := make([]byte, 6)
	sec6[0], sec6[1], sec6[2], sec6[3] = 0x00, 0x00, 0x00, 0x06
	sec6[4] = 6
	sec6[5] = 255 // No bitmap
	msg = append(msg, sec6...)

	sec7 := make([]byte, 14)
	sec7[0], sec7[1], sec7[2], sec7[3] = 0x00, 0x00, 0x00, 0x0E
	sec7[4] = 7
	copy(sec7[5:14], packed[:])
	msg = append(msg, sec7...)

	msg = append(msg, []byte("7777")...)

	msgLen := uint64(len(msg))
	for i := 0; i < 8; i++ {
		msg[8+i] = byte(msgLen >> uint(56-8*i))
	}
	return msg
}

// makeDepthMessage is makeTemperatureMessage with the Section-4 fixed-surface
// type set to 106 ("Depth BG") instead of 100 ("Isobaric"), same paramId
// (temperature category/number 0). Used to exercise the typeOfLevel leg of
// build_variable_components's AmbiguousVariableError check (spec.md §4.5
// point 1) against a file whose two messages otherwise look alike.
func makeDepthMessage(levelCm uint32, packed [9]byte) []byte {
	msg := makeTemperatureMessage(levelCm, packed)
	msg[16+21+86+22] = 106 // Section 4 byte 22: fixed surface type
	return msg
}
