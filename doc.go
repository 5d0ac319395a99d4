// Package sst25 drives SST25VF serial NOR flash over SPI.
//
// A Flash issues the chip's command frames over a Bus, keeps the block
// protection bits set between operations, and streams bytes from a
// ByteSource into a write Session while computing a CRC-32 of everything
// written.
//
// # References:
//
// SPI Flash
//   - [SST25VF080B]: 8 Mbit SPI Serial Flash data sheet (https://ww1.microchip.com/downloads/en/DeviceDoc/20005045C.pdf)
//   - [SST25VF016B]: 16 Mbit SPI Serial Flash data sheet (https://ww1.microchip.com/downloads/en/DeviceDoc/20005044C.pdf)
//
// FTDI (https://ftdichip.com/document/application-notes/)
//   - [FTDI-AN_108]: Command Processor for MPSSE and MCU Host Bus Emulation Modes (https://ftdichip.com/wp-content/uploads/2020/08/AN_108_Command_Processor_for_MPSSE_and_MCU_Host_Bus_Emulation_Modes.pdf)
//   - [FTDI-AN_114]: Interfacing FT2232H Hi-Speed Devices To SPI Bus (https://ftdichip.com/wp-content/uploads/2020/08/AN_114_FTDI_Hi_Speed_USB_To_SPI_Example.pdf)
//
// CRC
//   - [ISO-3309]: CRC-32 as used by zlib, gzip and PNG; reflected polynomial 0xEDB88320
package sst25
