package uds

// Request builders (spec.md §4.4 "Request builders"). Each performs
// PreRequestCheck via sendRequest, then populates the send buffer and
// transitions Idle -> Sending.

func (c *Client) SendDiagSessCtrl(sessType SessionType, now uint32) error {
	body := []byte{byte(SIDDiagnosticSessionControl), byte(sessType)}
	return c.sendRequest(SIDDiagnosticSessionControl, byte(sessType), true, body, now)
}

func (c *Client) SendECUReset(resetType ECUResetType, now uint32) error {
	body := []byte{byte(SIDECUReset), byte(resetType)}
	return c.sendRequest(SIDECUReset, byte(resetType), true, body, now)
}

func (c *Client) SendReadDataByIdentifier(dids []uint16, now uint32) error {
	if len(dids) == 0 {
		return ErrInvalidArgument
	}
	body := make([]byte, 1, 1+2*len(dids))
	body[0] = byte(SIDReadDataByIdentifier)
	for _, did := range dids {
		body = append(body, byte(did>>8), byte(did))
	}
	err := c.sendRequest(SIDReadDataByIdentifier, 0, false, body, now)
	if err == nil && len(dids) == 1 {
		// Echo-check only applies cleanly to the single-DID request; a
		// multi-DID response concatenates DID+data records instead of
		// echoing one DID up front.
		c.sentDID = dids[0]
		c.hasDID = true
	}
	return err
}

// SendReadMemoryByAddress requests memSize bytes at memAddr, encoded with
// the given address/length field widths (1..8 bytes each, ALFID nibbles).
func (c *Client) SendReadMemoryByAddress(memAddr, memSize uint64, addrBytes, sizeBytes int, now uint32) error {
	if addrBytes < 1 || addrBytes > 8 || sizeBytes < 1 || sizeBytes > 8 {
		return ErrInvalidArgument
	}
	alfid := byte(sizeBytes<<4) | byte(addrBytes)
	body := append([]byte{byte(SIDReadMemoryByAddress), alfid}, writeBE(memAddr, addrBytes)...)
	body = append(body, writeBE(memSize, sizeBytes)...)
	return c.sendRequest(SIDReadMemoryByAddress, 0, false, body, now)
}

func (c *Client) SendSecurityAccessRequestSeed(level uint8, dataRecord []byte, now uint32) error {
	if level%2 != 1 {
		return ErrInvalidArgument
	}
	body := append([]byte{byte(SIDSecurityAccess), level}, dataRecord...)
	return c.sendRequest(SIDSecurityAccess, level, true, body, now)
}

// SendSecurityAccessSendKey sends the even sub-function (level+1) paired
// with a prior SendSecurityAccessRequestSeed(level, ...).
func (c *Client) SendSecurityAccessSendKey(level uint8, key []byte, now uint32) error {
	if level%2 != 1 {
		return ErrInvalidArgument
	}
	sub := level + 1
	body := append([]byte{byte(SIDSecurityAccess), sub}, key...)
	return c.sendRequest(SIDSecurityAccess, sub, true, body, now)
}

func (c *Client) SendCommunicationControl(ctrlType, commType uint8, now uint32) error {
	body := []byte{byte(SIDCommunicationControl), ctrlType, commType}
	return c.sendRequest(SIDCommunicationControl, ctrlType, true, body, now)
}

func (c *Client) SendWriteDataByIdentifier(did uint16, data []byte, now uint32) error {
	body := append([]byte{byte(SIDWriteDataByIdentifier), byte(did >> 8), byte(did)}, data...)
	err := c.sendRequest(SIDWriteDataByIdentifier, 0, false, body, now)
	if err == nil {
		c.sentDID = did
		c.hasDID = true
	}
	return err
}

func (c *Client) SendRoutineControl(ctrlType uint8, routineID uint16, optionRecord []byte, now uint32) error {
	body := append([]byte{byte(SIDRoutineControl), ctrlType, byte(routineID >> 8), byte(routineID)}, optionRecord...)
	return c.sendRequest(SIDRoutineControl, ctrlType, true, body, now)
}

func (c *Client) sendRequestTransfer(sid SID, addr, size uint64, dataFormat uint8, addrBytes, sizeBytes int, now uint32) error {
	if addrBytes < 1 || addrBytes > 8 || sizeBytes < 1 || sizeBytes > 8 {
		return ErrInvalidArgument
	}
	alfid := byte(sizeBytes<<4) | byte(addrBytes)
	body := append([]byte{byte(sid), dataFormat, alfid}, writeBE(addr, addrBytes)...)
	body = append(body, writeBE(size, sizeBytes)...)
	return c.sendRequest(sid, 0, false, body, now)
}

func (c *Client) SendRequestDownload(addr, size uint64, dataFormat uint8, addrBytes, sizeBytes int, now uint32) error {
	return c.sendRequestTransfer(SIDRequestDownload, addr, size, dataFormat, addrBytes, sizeBytes, now)
}

func (c *Client) SendRequestUpload(addr, size uint64, dataFormat uint8, addrBytes, sizeBytes int, now uint32) error {
	return c.sendRequestTransfer(SIDRequestUpload, addr, size, dataFormat, addrBytes, sizeBytes, now)
}

func (c *Client) SendTransferData(blockSequenceCounter uint8, data []byte, now uint32) error {
	body := append([]byte{byte(SIDTransferData), blockSequenceCounter}, data...)
	return c.sendRequest(SIDTransferData, 0, false, body, now)
}

func (c *Client) SendRequestTransferExit(data []byte, now uint32) error {
	body := append([]byte{byte(SIDRequestTransferExit)}, data...)
	return c.sendRequest(SIDRequestTransferExit, 0, false, body, now)
}

func (c *Client) SendTesterPresent(now uint32) error {
	body := []byte{byte(SIDTesterPresent), 0x00}
	return c.sendRequest(SIDTesterPresent, 0x00, true, body, now)
}

func (c *Client) SendControlDTCSetting(sub uint8, now uint32) error {
	body := []byte{byte(SIDControlDTCSetting), sub}
	return c.sendRequest(SIDControlDTCSetting, sub, true, body, now)
}
